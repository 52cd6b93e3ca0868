package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Fatalf("expected default addr; got %q", cfg.Server.Addr)
	}
	if cfg.Engine.Rollback != "node" {
		t.Fatalf("expected node rollback; got %q", cfg.Engine.Rollback)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.yaml")
	body := `
remote:
  base_url: http://tasks.internal:9000
  timeout: 5s
engine:
  rollback: forest
  bulk_concurrency: 4
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TODO_USER_ID", "u-42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Remote.BaseURL != "http://tasks.internal:9000" {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Remote.Timeout)
	}
	if cfg.Engine.Rollback != "forest" || cfg.Engine.BulkConcurrency != 4 {
		t.Fatalf("unexpected engine config %+v", cfg.Engine)
	}
	if cfg.User.ID != "u-42" {
		t.Fatalf("expected env override; got %q", cfg.User.ID)
	}
}

func TestLoad_RejectsUnknownRollback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  rollback: sometimes\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error")
	}
}
