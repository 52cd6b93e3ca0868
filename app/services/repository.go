package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todo-sync/app/models"
)

var (
	// ErrTaskNotFound is returned when no task has the requested ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTask is returned when a write would break a task invariant.
	ErrInvalidTask = errors.New("invalid task")
)

// Repository is the server-side task store behind the REST API.
type Repository interface {
	// List returns top-level tasks with their subtasks attached.
	List(ctx context.Context, filter models.Filter) ([]models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	Create(ctx context.Context, in models.CreateInput) (*models.Task, error)
	Update(ctx context.Context, id string, patch models.Patch) (*models.Task, error)
	// SetDone changes the done state. Completing a top-level task completes
	// its open subtasks too.
	SetDone(ctx context.Context, id string, done bool, at time.Time) (*models.Task, error)
	// Delete removes a task and its subtasks.
	Delete(ctx context.Context, id string) error
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTask, fmt.Sprintf(format, args...))
}

func invalidErr(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidTask, err)
}

// keep reports whether a task passes the done filter.
func keep(t models.Task, filter models.Filter) bool {
	return filter.IncludeDone || !t.IsDone
}

// filterNest applies filter to a flat listing and nests the result. Subtasks
// follow their parent: they are listed only when the parent is, and the
// project filter looks at the parent's project.
func filterNest(flat []models.Task, filter models.Filter) []models.Task {
	byID := make(map[string]models.Task, len(flat))
	for _, t := range flat {
		byID[t.ID] = t
	}
	var out []models.Task
	for _, t := range flat {
		if !keep(t, filter) {
			continue
		}
		owner := t
		if t.IsSubtask() {
			parent, ok := byID[*t.ParentID]
			if !ok || !keep(parent, filter) {
				continue
			}
			owner = parent
		}
		if filter.ProjectID != nil && !models.SameRef(owner.ProjectID, filter.ProjectID) {
			continue
		}
		out = append(out, t)
	}
	return models.Nest(out)
}
