package services

import (
	"context"
	"fmt"

	"todo-sync/app/models"
)

// RemoteTaskService is the network boundary of the sync engine.
type RemoteTaskService interface {
	FetchTasks(ctx context.Context, filter models.Filter) ([]models.Task, error)
	CreateTask(ctx context.Context, in models.CreateInput) (*models.Task, error)
	UpdateInfo(ctx context.Context, id string, patch models.Patch) (*models.Task, error)
	UpdateStatus(ctx context.Context, id string, isDone bool) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// RemoteError is a rejected remote call.
type RemoteError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
