package models

import (
	"strings"
	"time"
)

// Priority bounds. 1 is the most urgent.
const (
	MinPriority     = 1
	MaxPriority     = 4
	DefaultPriority = MaxPriority
)

// Task represents a task with an optional parent ID.
// Only top-level tasks carry Subtasks, and a subtask never has its own.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	IsDone      bool       `json:"is_done"`
	Order       float64    `json:"order"`
	Priority    int        `json:"priority"`
	ParentID    *string    `json:"parent_id"`
	ProjectID   *string    `json:"project_id"`
	SectionID   *string    `json:"section_id"`
	Deadline    *Date      `json:"deadline"`
	ReminderAt  *Clock     `json:"reminder_at"`
	Comment     string     `json:"comment"`
	CompletedAt *time.Time `json:"completed_at"`
	Subtasks    []Task     `json:"subtasks,omitempty"`
}

// IsSubtask reports whether the task hangs under a parent.
func (t Task) IsSubtask() bool {
	return t.ParentID != nil && *t.ParentID != ""
}

// SetDone flips the done flag and keeps CompletedAt consistent with it.
func (t *Task) SetDone(done bool, now time.Time) {
	t.IsDone = done
	if done {
		at := now
		t.CompletedAt = &at
		return
	}
	t.CompletedAt = nil
}

// CreateInput is the payload for creating a task.
type CreateInput struct {
	Title      string  `json:"title"`
	Priority   int     `json:"priority,omitempty"`
	Order      float64 `json:"order"`
	ParentID   *string `json:"parent_id,omitempty"`
	ProjectID  *string `json:"project_id,omitempty"`
	SectionID  *string `json:"section_id,omitempty"`
	Deadline   *Date   `json:"deadline,omitempty"`
	ReminderAt *Clock  `json:"reminder_at,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// Validate normalizes the input and rejects it when it cannot become a task.
func (in *CreateInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return FieldError{Field: "title", Reason: "must not be empty"}
	}
	if in.Priority == 0 {
		in.Priority = DefaultPriority
	}
	if in.Priority < MinPriority || in.Priority > MaxPriority {
		return FieldError{Field: "priority", Reason: "must be between 1 and 4"}
	}
	if in.ReminderAt != nil && in.Deadline == nil {
		return FieldError{Field: "reminder_at", Reason: "requires a deadline"}
	}
	return nil
}

// Task builds the task the input describes, without an ID.
func (in CreateInput) Task() Task {
	return Task{
		Title:      in.Title,
		Order:      in.Order,
		Priority:   in.Priority,
		ParentID:   cloneString(in.ParentID),
		ProjectID:  cloneString(in.ProjectID),
		SectionID:  cloneString(in.SectionID),
		Deadline:   in.Deadline,
		ReminderAt: in.ReminderAt,
		Comment:    in.Comment,
	}
}

// Filter narrows a task listing.
type Filter struct {
	ProjectID   *string
	IncludeDone bool
}

// FieldError reports an invalid field value.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Nest groups a flat task list into top-level tasks carrying their subtasks.
// Subtasks whose parent is absent from the list are promoted to the top level.
func Nest(flat []Task) []Task {
	index := make(map[string]int, len(flat))
	var roots []Task
	for _, t := range flat {
		if t.IsSubtask() {
			continue
		}
		t.Subtasks = nil
		index[t.ID] = len(roots)
		roots = append(roots, t)
	}
	for _, t := range flat {
		if !t.IsSubtask() {
			continue
		}
		i, ok := index[*t.ParentID]
		if !ok {
			roots = append(roots, t)
			continue
		}
		t.Subtasks = nil
		roots[i].Subtasks = append(roots[i].Subtasks, t)
	}
	return roots
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// SameRef reports whether two optional references point to the same value.
func SameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
