package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"todo-sync/app/models"
	"todo-sync/app/services"
)

// TaskController handles HTTP requests for tasks.
type TaskController struct {
	Repo   services.Repository
	Logger *log.Logger
	Now    func() time.Time
}

// NewTaskController creates a new TaskController.
func NewTaskController(repo services.Repository, logger *log.Logger) *TaskController {
	return &TaskController{Repo: repo, Logger: logger, Now: time.Now}
}

// GetTasks handles GET /tasks.
func (c *TaskController) GetTasks(w http.ResponseWriter, r *http.Request) {
	var filter models.Filter
	q := r.URL.Query()
	if p := q.Get("project_id"); p != "" {
		filter.ProjectID = &p
	}
	if v := q.Get("include_done"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "include_done must be a boolean", http.StatusBadRequest)
			return
		}
		filter.IncludeDone = b
	}

	tasks, err := c.Repo.List(r.Context(), filter)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /tasks.
func (c *TaskController) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in models.CreateInput
	if err := decode(r, &in); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, err := c.Repo.Create(r.Context(), in)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	c.Logger.Info("task created", "id", task.ID, "parent", task.ParentID)
	writeJSON(w, http.StatusCreated, task)
}

// GetTaskByID handles GET /tasks/{taskID}.
func (c *TaskController) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	task, err := c.Repo.Get(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /tasks/{taskID}. Only the fields present in the
// body change; an explicit null clears an optional field.
func (c *TaskController) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch models.Patch
	if err := decode(r, &patch); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, err := c.Repo.Update(r.Context(), mux.Vars(r)["taskID"], patch)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateStatus handles PUT /tasks/{taskID}/status.
func (c *TaskController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsDone *bool `json:"is_done"`
	}
	if err := decode(r, &body); err != nil || body.IsDone == nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, err := c.Repo.SetDone(r.Context(), mux.Vars(r)["taskID"], *body.IsDone, c.Now())
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{taskID}.
func (c *TaskController) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]
	if err := c.Repo.Delete(r.Context(), id); err != nil {
		c.fail(w, r, err)
		return
	}
	c.Logger.Info("task deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health.
func (c *TaskController) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// fail maps repository errors to status codes.
func (c *TaskController) fail(w http.ResponseWriter, r *http.Request, err error) {
	var field models.FieldError
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		http.Error(w, "Task not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidTask), errors.As(err, &field):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		c.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
