package logging

import (
	"bytes"
	"strings"
	"testing"

	"todo-sync/app/config"
)

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf, "todo")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("rolled back", "ref", "t-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, `"ref":"t-1"`) {
		t.Fatalf("expected json field; got %q", out)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}, ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
