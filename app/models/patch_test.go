package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPatchJSON_DistinguishesUnsetFromNull(t *testing.T) {
	title := "Write report"
	p := Patch{
		Title:      &title,
		ReminderAt: Null[Clock](),
		Deadline:   Value(Date{Year: 2024, Month: time.January, Day: 9}),
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if _, ok := raw["project_id"]; ok {
		t.Fatalf("unset project_id must not be sent: %s", b)
	}
	if v, ok := raw["reminder_at"]; !ok || v != nil {
		t.Fatalf("expected reminder_at null; got %s", b)
	}
	if raw["deadline"] != "2024-01-09" {
		t.Fatalf("expected date-only deadline; got %s", b)
	}

	var back Patch
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}
	if back.ProjectID.Set {
		t.Fatalf("expected project_id unset after decode")
	}
	if !back.ReminderAt.Set || back.ReminderAt.Value != nil {
		t.Fatalf("expected reminder_at cleared after decode; got %+v", back.ReminderAt)
	}
}

func TestPatchApply(t *testing.T) {
	at := Clock{Hour: 9, Minute: 30}
	task := Task{Title: "old", Priority: 4, ProjectID: StringPtr("p1"), ReminderAt: &at}
	title := "new"
	Patch{Title: &title, ProjectID: Null[string](), ReminderAt: Null[Clock]()}.Apply(&task)

	if task.Title != "new" {
		t.Fatalf("expected title new; got %q", task.Title)
	}
	if task.ProjectID != nil || task.ReminderAt != nil {
		t.Fatalf("expected cleared refs; got %+v", task)
	}
	if task.Priority != 4 {
		t.Fatalf("untouched field changed: %d", task.Priority)
	}
}

func TestPatchValidate(t *testing.T) {
	blank := "   "
	if err := (&Patch{Title: &blank}).Validate(); err == nil {
		t.Fatalf("expected error for blank title")
	}
	bad := 7
	if err := (&Patch{Priority: &bad}).Validate(); err == nil {
		t.Fatalf("expected error for priority 7")
	}
}

func TestDueAt(t *testing.T) {
	d := Date{Year: 2024, Month: time.January, Day: 9}
	end := DueAt(d, nil, time.UTC)
	if end.Hour() != 23 || end.Minute() != 59 || end.Nanosecond() != int(999*time.Millisecond) {
		t.Fatalf("expected end of day; got %v", end)
	}
	at := DueAt(d, &Clock{Hour: 8, Minute: 15}, time.UTC)
	if want := time.Date(2024, 1, 9, 8, 15, 0, 0, time.UTC); !at.Equal(want) {
		t.Fatalf("expected %v; got %v", want, at)
	}
}

func TestNest(t *testing.T) {
	flat := []Task{
		{ID: "c1", ParentID: StringPtr("p1")},
		{ID: "p1"},
		{ID: "orphan", ParentID: StringPtr("gone")},
	}
	got := Nest(flat)
	if len(got) != 2 {
		t.Fatalf("expected 2 roots; got %d", len(got))
	}
	if got[0].ID != "p1" || len(got[0].Subtasks) != 1 || got[0].Subtasks[0].ID != "c1" {
		t.Fatalf("unexpected nesting: %+v", got)
	}
	if got[1].ID != "orphan" {
		t.Fatalf("expected orphan promoted; got %+v", got[1])
	}
}
