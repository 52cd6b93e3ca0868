package selection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"todo-sync/app/logging"
	"todo-sync/app/models"
	"todo-sync/app/tree"
)

type call struct {
	Op    string
	Ref   string
	Patch models.Patch
}

type fakeMutations struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func (f *fakeMutations) record(op string, ref tree.Ref, patch models.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: op, Ref: ref.ID(), Patch: patch})
	return f.fail[ref.ID()]
}

func (f *fakeMutations) Update(_ context.Context, ref tree.Ref, patch models.Patch) error {
	return f.record("update", ref, patch)
}

func (f *fakeMutations) UpdateDone(_ context.Context, ref tree.Ref, _ bool) error {
	return f.record("done", ref, models.Patch{})
}

func (f *fakeMutations) Remove(_ context.Context, ref tree.Ref) error {
	return f.record("remove", ref, models.Patch{})
}

func (f *fakeMutations) refs(op string) map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, c := range f.calls {
		if c.Op == op {
			out[c.Ref] = true
		}
	}
	return out
}

func refs(ids ...string) []tree.Ref {
	out := make([]tree.Ref, len(ids))
	for i, id := range ids {
		out[i] = tree.Confirmed(id)
	}
	return out
}

func newCoordinator(m Mutations, visible ...string) *Coordinator {
	c := New(m, WithLogger(logging.Discard()), WithConcurrency(2))
	c.SetView("inbox", refs(visible...))
	c.Enter()
	return c
}

func TestBulkDelete_PartialFailure(t *testing.T) {
	errServer := errors.New("server said no")
	fake := &fakeMutations{fail: map[string]error{"b": errServer}}
	c := newCoordinator(fake, "a", "b", "c")
	c.ToggleSelectAll()

	err := c.BulkDelete(context.Background())
	if !errors.Is(err, errServer) {
		t.Fatalf("expected joined server error; got %v", err)
	}
	if !strings.Contains(err.Error(), "bulk_delete") {
		t.Fatalf("expected op in error; got %q", err)
	}
	if got := fake.refs("remove"); len(got) != 3 {
		t.Fatalf("every selected task must be attempted; got %v", got)
	}
	if c.Count() != 0 || c.Active() {
		t.Fatalf("expected selection cleared and mode exited; count=%d active=%v", c.Count(), c.Active())
	}
}

func TestBulkComplete_OnlySelected(t *testing.T) {
	fake := &fakeMutations{}
	c := newCoordinator(fake, "a", "b", "c")
	c.Toggle(tree.Confirmed("a"))
	c.Toggle(tree.Confirmed("c"))

	if err := c.BulkComplete(context.Background()); err != nil {
		t.Fatalf("BulkComplete error: %v", err)
	}
	if diff := cmp.Diff(map[string]bool{"a": true, "c": true}, fake.refs("done")); diff != "" {
		t.Fatalf("unexpected targets (-want +got):\n%s", diff)
	}
}

func TestToggleSelectAll(t *testing.T) {
	c := newCoordinator(&fakeMutations{}, "a", "b", "c")

	c.Toggle(tree.Confirmed("b"))
	c.ToggleSelectAll()
	if c.Count() != 3 {
		t.Fatalf("partial selection should become full; got %d", c.Count())
	}
	c.ToggleSelectAll()
	if c.Count() != 0 {
		t.Fatalf("full selection should clear; got %d", c.Count())
	}
	if c.Total() != 3 {
		t.Fatalf("expected total 3; got %d", c.Total())
	}
}

func TestSetView_ChangeClearsSelection(t *testing.T) {
	c := newCoordinator(&fakeMutations{}, "a", "b")
	c.ToggleSelectAll()

	c.SetView("inbox", refs("a"))
	if diff := cmp.Diff(refs("a"), c.Selected(), cmp.AllowUnexported(tree.Ref{})); diff != "" {
		t.Fatalf("same view should keep visible selection (-want +got):\n%s", diff)
	}

	c.SetView("today", refs("a", "b"))
	if c.Count() != 0 {
		t.Fatalf("view change must clear selection; got %d", c.Count())
	}
}

func TestToggle_IgnoresInvisible(t *testing.T) {
	c := newCoordinator(&fakeMutations{}, "a")
	c.Toggle(tree.Confirmed("zzz"))
	if c.Count() != 0 {
		t.Fatalf("invisible ref must not be selectable")
	}
}

func TestBulkUpdateDeadline_Patch(t *testing.T) {
	date := models.Date{Year: 2024, Month: time.March, Day: 4}
	at := models.Clock{Hour: 9, Minute: 30}

	for _, tc := range []struct {
		name string
		at   *models.Clock
		want models.Patch
	}{
		{"all day", nil, models.Patch{Deadline: models.Value(date), ReminderAt: models.Null[models.Clock]()}},
		{"timed", &at, models.Patch{Deadline: models.Value(date), ReminderAt: models.Value(at)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeMutations{}
			c := newCoordinator(fake, "a")
			c.ToggleSelectAll()
			if err := c.BulkUpdateDeadline(context.Background(), date, tc.at); err != nil {
				t.Fatalf("BulkUpdateDeadline error: %v", err)
			}
			if len(fake.calls) != 1 {
				t.Fatalf("expected one call; got %d", len(fake.calls))
			}
			if diff := cmp.Diff(tc.want, fake.calls[0].Patch); diff != "" {
				t.Fatalf("unexpected patch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBulkSetPriority_OutOfRange(t *testing.T) {
	fake := &fakeMutations{}
	c := newCoordinator(fake, "a")
	c.ToggleSelectAll()
	if err := c.BulkSetPriority(context.Background(), 7); err == nil {
		t.Fatalf("expected range error")
	}
	if len(fake.calls) != 0 {
		t.Fatalf("no mutation expected")
	}
}
