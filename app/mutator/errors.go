package mutator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the target task is not in the local forest.
	ErrNotFound = errors.New("task not found")
	// ErrPending is returned when a mutation targets a task the server has not confirmed yet.
	ErrPending = errors.New("task not saved yet")
)

// ValidationError rejects a mutation before anything is applied locally.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}
