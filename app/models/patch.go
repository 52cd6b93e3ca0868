package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Nullable is an optional field that can also be explicitly cleared.
// The zero value means "leave untouched".
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Null returns a Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Value returns a Nullable that sets the field to v.
func Value[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

func (n Nullable[T]) apply(dst **T) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		*dst = nil
		return
	}
	v := *n.Value
	*dst = &v
}

func (n *Nullable[T]) decode(raw json.RawMessage) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Patch is a partial update of a task's informational fields.
// Done state changes go through the status endpoint instead.
type Patch struct {
	Title      *string
	Priority   *int
	Order      *float64
	Comment    *string
	ProjectID  Nullable[string]
	SectionID  Nullable[string]
	Deadline   Nullable[Date]
	ReminderAt Nullable[Clock]
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Priority == nil && p.Order == nil && p.Comment == nil &&
		!p.ProjectID.Set && !p.SectionID.Set && !p.Deadline.Set && !p.ReminderAt.Set
}

// Validate rejects patches that would leave a task invalid.
func (p *Patch) Validate() error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return FieldError{Field: "title", Reason: "must not be empty"}
		}
		p.Title = &title
	}
	if p.Priority != nil && (*p.Priority < MinPriority || *p.Priority > MaxPriority) {
		return FieldError{Field: "priority", Reason: "must be between 1 and 4"}
	}
	return nil
}

// Apply shallow-merges the set fields into t.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.Comment != nil {
		t.Comment = *p.Comment
	}
	p.ProjectID.apply(&t.ProjectID)
	p.SectionID.apply(&t.SectionID)
	p.Deadline.apply(&t.Deadline)
	p.ReminderAt.apply(&t.ReminderAt)
}

// MarshalJSON emits only the fields that are set; cleared fields become null.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	if p.Order != nil {
		m["order"] = *p.Order
	}
	if p.Comment != nil {
		m["comment"] = *p.Comment
	}
	if p.ProjectID.Set {
		m["project_id"] = p.ProjectID.Value
	}
	if p.SectionID.Set {
		m["section_id"] = p.SectionID.Value
	}
	if p.Deadline.Set {
		m["deadline"] = p.Deadline.Value
	}
	if p.ReminderAt.Set {
		m["reminder_at"] = p.ReminderAt.Value
	}
	return json.Marshal(m)
}

func (p *Patch) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Patch{}
	for key, val := range raw {
		var err error
		switch key {
		case "title":
			err = json.Unmarshal(val, &p.Title)
		case "priority":
			err = json.Unmarshal(val, &p.Priority)
		case "order":
			err = json.Unmarshal(val, &p.Order)
		case "comment":
			err = json.Unmarshal(val, &p.Comment)
		case "project_id":
			err = p.ProjectID.decode(val)
		case "section_id":
			err = p.SectionID.decode(val)
		case "deadline":
			err = p.Deadline.decode(val)
		case "reminder_at":
			err = p.ReminderAt.decode(val)
		default:
			return fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}
