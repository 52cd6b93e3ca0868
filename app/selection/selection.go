// Package selection tracks multi-select state over the visible task list
// and fans bulk actions out to the mutator.
package selection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"todo-sync/app/models"
	"todo-sync/app/tree"
)

// Mutations is the part of the mutator bulk actions use.
type Mutations interface {
	Update(ctx context.Context, ref tree.Ref, patch models.Patch) error
	UpdateDone(ctx context.Context, ref tree.Ref, done bool) error
	Remove(ctx context.Context, ref tree.Ref) error
}

// Coordinator holds the selection for the current view.
type Coordinator struct {
	mutations   Mutations
	logger      *log.Logger
	concurrency int

	mu       sync.Mutex
	active   bool
	view     string
	visible  []tree.Ref
	selected map[tree.Ref]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger bulk failures are reported to.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithConcurrency caps simultaneous calls per bulk action. 0 is unbounded.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.concurrency = n }
}

// New creates a Coordinator issuing bulk actions through m.
func New(m Mutations, opts ...Option) *Coordinator {
	c := &Coordinator{
		mutations: m,
		logger:    log.Default(),
		selected:  make(map[tree.Ref]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetView records the current view. A different key clears the selection;
// the same key keeps it, minus refs no longer visible.
func (c *Coordinator) SetView(key string, visible []tree.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != c.view {
		c.view = key
		c.selected = make(map[tree.Ref]struct{})
	}
	c.visible = slices.Clone(visible)
	for r := range c.selected {
		if !slices.Contains(c.visible, r) {
			delete(c.selected, r)
		}
	}
}

// Enter turns selection mode on.
func (c *Coordinator) Enter() {
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
}

// Exit turns selection mode off and clears the selection.
func (c *Coordinator) Exit() {
	c.mu.Lock()
	c.exitLocked()
	c.mu.Unlock()
}

func (c *Coordinator) exitLocked() {
	c.active = false
	c.selected = make(map[tree.Ref]struct{})
}

// Active reports whether selection mode is on.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Toggle selects or deselects ref. Refs outside the view are ignored.
func (c *Coordinator) Toggle(ref tree.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.visible, ref) {
		return
	}
	if _, ok := c.selected[ref]; ok {
		delete(c.selected, ref)
		return
	}
	c.selected[ref] = struct{}{}
}

// ToggleSelectAll clears the selection when everything visible is selected,
// and selects everything visible otherwise.
func (c *Coordinator) ToggleSelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selected) == len(c.visible) && len(c.visible) > 0 {
		c.selected = make(map[tree.Ref]struct{})
		return
	}
	c.selected = make(map[tree.Ref]struct{}, len(c.visible))
	for _, r := range c.visible {
		c.selected[r] = struct{}{}
	}
}

// Selected returns the selected refs in view order.
func (c *Coordinator) Selected() []tree.Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

func (c *Coordinator) selectedLocked() []tree.Ref {
	var out []tree.Ref
	for _, r := range c.visible {
		if _, ok := c.selected[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many refs are selected.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// Total returns how many refs are visible, flattened subtasks included.
func (c *Coordinator) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visible)
}

// BulkComplete marks every selected task done.
func (c *Coordinator) BulkComplete(ctx context.Context) error {
	return c.bulk(ctx, "bulk_complete", func(ctx context.Context, r tree.Ref) error {
		return c.mutations.UpdateDone(ctx, r, true)
	})
}

// BulkDelete removes every selected task.
func (c *Coordinator) BulkDelete(ctx context.Context) error {
	return c.bulk(ctx, "bulk_delete", c.mutations.Remove)
}

// BulkUpdateDeadline moves every selected task's deadline to date. A nil at
// means the deadline is due at the end of the day and clears the reminder.
func (c *Coordinator) BulkUpdateDeadline(ctx context.Context, date models.Date, at *models.Clock) error {
	patch := models.Patch{Deadline: models.Value(date), ReminderAt: models.Null[models.Clock]()}
	if at != nil {
		patch.ReminderAt = models.Value(*at)
	}
	return c.bulk(ctx, "bulk_update_deadline", func(ctx context.Context, r tree.Ref) error {
		return c.mutations.Update(ctx, r, patch)
	})
}

// BulkSetPriority sets every selected task's priority.
func (c *Coordinator) BulkSetPriority(ctx context.Context, priority int) error {
	if priority < models.MinPriority || priority > models.MaxPriority {
		return fmt.Errorf("bulk_set_priority: priority %d out of range", priority)
	}
	patch := models.Patch{Priority: &priority}
	return c.bulk(ctx, "bulk_set_priority", func(ctx context.Context, r tree.Ref) error {
		return c.mutations.Update(ctx, r, patch)
	})
}

// bulk runs fn once per selected ref, concurrently. Every call runs to
// completion regardless of the others; afterwards the selection is cleared
// and selection mode exited. The failures are joined into the result.
func (c *Coordinator) bulk(ctx context.Context, op string, fn func(context.Context, tree.Ref) error) error {
	c.mu.Lock()
	refs := c.selectedLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.exitLocked()
		c.mu.Unlock()
	}()

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	errs := make([]error, len(refs))
	for i, r := range refs {
		g.Go(func() error {
			if err := fn(ctx, r); err != nil {
				errs[i] = fmt.Errorf("%s: %w", r, err)
				c.logger.Warn("bulk item failed", "op", op, "ref", r, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("bulk action done", "op", op, "count", len(refs))
	return nil
}
