package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"todo-sync/app/controllers"
	"todo-sync/app/logging"
	"todo-sync/app/models"
	"todo-sync/app/routes"
	"todo-sync/app/services"
)

func startAPI(t *testing.T, seed ...models.Task) (*services.MemoryRepository, string) {
	t.Helper()
	repo := services.NewMemoryRepository()
	if err := repo.Import(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	router := mux.NewRouter()
	routes.RegisterRoutes(router, controllers.NewTaskController(repo, logging.Discard()), "tok")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	cfg := filepath.Join(t.TempDir(), "todo.yaml")
	body := fmt.Sprintf("remote:\n  base_url: %s\n  token: tok\nlog:\n  level: error\n", srv.URL)
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return repo, cfg
}

func runCLI(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_AddListDone(t *testing.T) {
	repo, cfg := startAPI(t, models.Task{ID: "plan-trip", Title: "Plan trip", Priority: 4})

	if _, err := runCLI(t, cfg, "add", "--parent", "plan", "Book", "hotel"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCLI(t, cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Plan trip") || !strings.Contains(out, "Book hotel") {
		t.Fatalf("expected parent and subtask in listing; got %q", out)
	}

	if _, err := runCLI(t, cfg, "done", "plan-trip"); err != nil {
		t.Fatalf("done: %v", err)
	}
	tasks, _ := repo.List(context.Background(), models.Filter{IncludeDone: true})
	if len(tasks) != 1 || !tasks[0].IsDone || len(tasks[0].Subtasks) != 1 || !tasks[0].Subtasks[0].IsDone {
		t.Fatalf("expected completed parent and subtask on server; got %+v", tasks)
	}

	out, err = runCLI(t, cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out, "Plan trip") {
		t.Fatalf("done task listed without --all: %q", out)
	}
}

func TestCLI_UnknownAndAmbiguousIDs(t *testing.T) {
	_, cfg := startAPI(t,
		models.Task{ID: "abc1", Title: "A", Priority: 4},
		models.Task{ID: "abc2", Title: "B", Priority: 4},
	)
	if _, err := runCLI(t, cfg, "rm", "abc"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguous prefix error; got %v", err)
	}
	if _, err := runCLI(t, cfg, "rm", "zzz"); err == nil {
		t.Fatalf("expected unknown id error")
	}
}

func TestParseDeadline(t *testing.T) {
	d, c, err := parseDeadline("2024-03-04", "09:30")
	if err != nil {
		t.Fatalf("parseDeadline: %v", err)
	}
	if d.String() != "2024-03-04" || c.String() != "09:30" {
		t.Fatalf("unexpected %v %v", d, c)
	}
	if _, _, err := parseDeadline("", "09:30"); err == nil {
		t.Fatalf("time without date must fail")
	}
	if d, c, err := parseDeadline("", ""); err != nil || d != nil || c != nil {
		t.Fatalf("empty input should yield nothing")
	}
}
