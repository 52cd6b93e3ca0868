// Package views derives the list a screen renders from the canonical forest.
package views

import (
	"fmt"
	"slices"
	"time"

	"todo-sync/app/models"
	"todo-sync/app/tree"
)

// Mode selects a view.
type Mode string

const (
	ModeInbox     Mode = "inbox"
	ModeToday     Mode = "today"
	ModeOverdue   Mode = "overdue"
	ModeCompleted Mode = "completed"
	ModeProject   Mode = "project"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeInbox, ModeToday, ModeOverdue, ModeCompleted, ModeProject:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Flat reports whether the mode lists subtasks as standalone items.
func (m Mode) Flat() bool {
	return m == ModeToday || m == ModeOverdue || m == ModeCompleted
}

// Query is everything a view depends on besides the forest.
type Query struct {
	Mode      Mode
	ProjectID string
	ShowAll   bool
	Now       time.Time
}

// Key identifies the view. Selections belong to one key.
func (q Query) Key() string {
	if q.Mode == ModeProject {
		return string(q.Mode) + ":" + q.ProjectID
	}
	return string(q.Mode)
}

// Item is one rendered row. ParentTitle is set on flattened subtasks.
type Item struct {
	Ref         tree.Ref
	Task        models.Task
	ParentTitle string
	Subtasks    []Item
}

// Derive returns the rows of the view q selects from f, siblings in
// tree.Compare order whatever order f holds them in.
func Derive(f tree.Forest, q Query) []Item {
	f = f.Sorted()
	if q.Mode.Flat() {
		return flatten(f, q)
	}
	return nested(f, q)
}

func nested(f tree.Forest, q Query) []Item {
	var out []Item
	for _, r := range f.Roots() {
		t, _ := f.Get(r)
		if !inScope(t, q) || hidden(t, q) {
			continue
		}
		item := Item{Ref: r, Task: t}
		for _, c := range f.Children(r) {
			ct, _ := f.Get(c)
			if hidden(ct, q) {
				continue
			}
			item.Subtasks = append(item.Subtasks, Item{Ref: c, Task: ct})
		}
		out = append(out, item)
	}
	return out
}

func flatten(f tree.Forest, q Query) []Item {
	var out []Item
	for _, r := range f.Roots() {
		t, _ := f.Get(r)
		if matches(t, q) {
			out = append(out, Item{Ref: r, Task: t})
		}
		for _, c := range f.Children(r) {
			ct, _ := f.Get(c)
			if matches(ct, q) {
				out = append(out, Item{Ref: c, Task: ct, ParentTitle: t.Title})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Item) int {
		switch {
		case a.Task.IsDone == b.Task.IsDone:
			return 0
		case a.Task.IsDone:
			return 1
		default:
			return -1
		}
	})
	return out
}

// inScope applies the nested modes' top-level predicate.
func inScope(t models.Task, q Query) bool {
	switch q.Mode {
	case ModeInbox:
		return t.ProjectID == nil
	case ModeProject:
		return t.ProjectID != nil && *t.ProjectID == q.ProjectID
	}
	return false
}

// hidden reports whether ShowAll gating drops t.
func hidden(t models.Task, q Query) bool {
	return t.IsDone && !q.ShowAll
}

// matches applies a flat mode's predicate to a single task.
func matches(t models.Task, q Query) bool {
	switch q.Mode {
	case ModeToday:
		return IsToday(t, q.Now) && !hidden(t, q)
	case ModeOverdue:
		return IsOverdue(t, q.Now) && !hidden(t, q)
	case ModeCompleted:
		return t.IsDone
	}
	return false
}

// IsToday reports whether t's deadline falls on now's calendar date.
func IsToday(t models.Task, now time.Time) bool {
	return t.Deadline != nil && *t.Deadline == models.DateOf(now)
}

// IsOverdue reports whether an open task's deadline instant is before now.
func IsOverdue(t models.Task, now time.Time) bool {
	if t.IsDone || t.Deadline == nil {
		return false
	}
	return models.DueAt(*t.Deadline, t.ReminderAt, now.Location()).Before(now)
}

// Refs lists every ref visible in items, nested subtasks included.
func Refs(items []Item) []tree.Ref {
	var out []tree.Ref
	for _, it := range items {
		out = append(out, it.Ref)
		out = append(out, Refs(it.Subtasks)...)
	}
	return out
}
