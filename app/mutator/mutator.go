// Package mutator applies task mutations optimistically: the local forest
// changes first, the remote call follows, and the change is either confirmed
// with the server's record or rolled back.
package mutator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"todo-sync/app/models"
	"todo-sync/app/services"
	"todo-sync/app/store"
	"todo-sync/app/tree"
)

// RollbackMode selects what a failed update or removal restores.
type RollbackMode string

const (
	// RollbackNode restores only the nodes the failed mutation touched.
	RollbackNode RollbackMode = "node"
	// RollbackForest restores the whole forest as it was before the mutation,
	// discarding any other optimistic change made in the meantime.
	RollbackForest RollbackMode = "forest"
)

// ParseRollbackMode validates a rollback mode name.
func ParseRollbackMode(s string) (RollbackMode, error) {
	switch RollbackMode(s) {
	case RollbackNode, RollbackForest:
		return RollbackMode(s), nil
	case "":
		return RollbackNode, nil
	}
	return "", fmt.Errorf("unknown rollback mode %q", s)
}

// Mutator is the optimistic transaction executor over a store.
type Mutator struct {
	store    *store.Store
	remote   services.RemoteTaskService
	logger   *log.Logger
	now      func() time.Time
	rollback RollbackMode

	nextLocal atomic.Uint64

	mu      sync.Mutex
	seq     uint64
	flights map[tree.Ref]*flight
	// creates holds the speculative task of every create in flight.
	creates map[tree.Ref]models.Task
	// landed maps settled pending refs to their confirmed entry while any
	// mutation that may restore an older forest is still open.
	landed map[tree.Ref]tree.Entry
	open   int
}

// flight tracks the in-flight mutations on one ref. base is the last value
// the server confirmed; stamp is the most recently issued mutation.
// A detached flight has nothing in flight: its node was out of the forest
// when its mutation settled, and base waits for a removal's restore.
type flight struct {
	stamp    uint64
	base     models.Task
	detached bool
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *log.Logger) Option {
	return func(m *Mutator) { m.logger = l }
}

// WithClock sets the time source used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Mutator) { m.now = now }
}

// WithRollback sets the rollback mode. The default is RollbackNode.
func WithRollback(mode RollbackMode) Option {
	return func(m *Mutator) { m.rollback = mode }
}

// New creates a Mutator applying changes to s and confirming them with remote.
func New(s *store.Store, remote services.RemoteTaskService, opts ...Option) *Mutator {
	m := &Mutator{
		store:    s,
		remote:   remote,
		logger:   log.Default(),
		now:      time.Now,
		rollback: RollbackNode,
		flights:  make(map[tree.Ref]*flight),
		creates:  make(map[tree.Ref]models.Task),
		landed:   make(map[tree.Ref]tree.Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the store the mutator writes to.
func (m *Mutator) Store() *store.Store {
	return m.store
}

// Load replaces the forest with the server's tasks. Mutations still in
// flight settle as stale afterwards.
func (m *Mutator) Load(ctx context.Context, filter models.Filter) error {
	m.store.Dispatch(func(st store.State) store.State {
		st.Loading = true
		return st
	})
	tasks, err := m.remote.FetchTasks(ctx, filter)
	if err != nil {
		m.store.Dispatch(func(st store.State) store.State {
			st.Loading = false
			return st
		})
		m.logger.Warn("load failed", "err", err)
		return fmt.Errorf("load tasks: %w", err)
	}

	m.mu.Lock()
	m.flights = make(map[tree.Ref]*flight)
	m.creates = make(map[tree.Ref]models.Task)
	m.landed = make(map[tree.Ref]tree.Entry)
	m.mu.Unlock()

	m.store.Dispatch(func(st store.State) store.State {
		st.Forest = tree.FromTasks(tasks).Sorted()
		st.Loading = false
		return st
	})
	m.logger.Debug("loaded tasks", "count", len(tasks))
	return nil
}

// Create inserts a speculative task, then asks the server to create it.
// On success the speculative node is replaced in place by the confirmed
// record; on failure it is removed. The returned ref is the confirmed one
// on success and the discarded pending one on failure.
func (m *Mutator) Create(ctx context.Context, in models.CreateInput) (tree.Ref, error) {
	const op = "create"
	if err := in.Validate(); err != nil {
		return tree.Ref{}, invalid(op, err)
	}

	pending := tree.Pending(m.nextLocal.Add(1))
	var insertErr error
	m.store.Update(func(f tree.Forest) tree.Forest {
		parent := tree.Ref{}
		if in.ParentID != nil && *in.ParentID != "" {
			parent = tree.Confirmed(*in.ParentID)
		}
		in.Order = nextOrder(f, parent, in.SectionID)
		task := in.Task()

		n := f.AppendRoot(pending, task)
		if !parent.IsZero() {
			var err error
			if n, err = f.InsertSubtask(parent, pending, task); err != nil {
				insertErr = err
				return f
			}
		}
		m.mu.Lock()
		m.creates[pending] = task
		m.open++
		m.mu.Unlock()
		return n.Sorted()
	})
	if insertErr != nil {
		return tree.Ref{}, invalid(op, insertErr)
	}

	created, err := m.remote.CreateTask(ctx, in)
	if err == nil && (created == nil || created.ID == "") {
		err = &services.RemoteError{Op: "create task", Message: "response carries no task id"}
	}
	if err != nil {
		m.store.Update(func(f tree.Forest) tree.Forest {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.creates, pending)
			m.settle()
			return f.Remove(pending)
		})
		m.logger.Warn("create failed, speculative task discarded", "op", op, "ref", pending, "title", in.Title, "err", err)
		return pending, fmt.Errorf("create %q: %w", in.Title, err)
	}

	confirmed := tree.Confirmed(created.ID)
	var landed bool
	m.store.Update(func(f tree.Forest) tree.Forest {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.creates, pending)
		m.landed[pending] = tree.Entry{Ref: confirmed, Task: *created}
		m.settle()
		if _, ok := f.Get(pending); !ok {
			return f
		}
		landed = true
		return f.Replace(pending, confirmed, *created).Sorted()
	})
	if !landed {
		m.logger.Debug("created task no longer in forest", "op", op, "ref", confirmed)
	}
	return confirmed, nil
}

// nextOrder is one past the largest order among the siblings sharing parent
// and section, or 0 when there are none.
func nextOrder(f tree.Forest, parent tree.Ref, section *string) float64 {
	next := 0.0
	for _, r := range f.Siblings(parent) {
		t, _ := f.Get(r)
		if !models.SameRef(t.SectionID, section) {
			continue
		}
		if t.Order+1 > next {
			next = t.Order + 1
		}
	}
	return next
}

// Update applies patch locally, then sends it to the server.
func (m *Mutator) Update(ctx context.Context, ref tree.Ref, patch models.Patch) error {
	const op = "update"
	if err := patch.Validate(); err != nil {
		return invalid(op, err)
	}
	if patch.IsEmpty() {
		return nil
	}
	if err := m.target(op, ref); err != nil {
		return err
	}

	tx := m.begin(func(f tree.Forest) (tree.Forest, []tree.Ref) {
		return f.Patch(ref, patch.Apply).Sorted(), []tree.Ref{ref}
	})

	updated, err := m.remote.UpdateInfo(ctx, ref.ID(), patch)
	if err != nil {
		m.fail(tx, op, err)
		return fmt.Errorf("update %s: %w", ref, err)
	}
	m.commit(tx, map[tree.Ref]models.Task{ref: *updated})
	return nil
}

// UpdateDone marks a task done or not done. Completing a top-level task also
// completes its open subtasks (see CompleteCascade).
func (m *Mutator) UpdateDone(ctx context.Context, ref tree.Ref, done bool) error {
	const op = "update_done"
	if err := m.target(op, ref); err != nil {
		return err
	}

	now := m.now()
	tx := m.begin(func(f tree.Forest) (tree.Forest, []tree.Ref) {
		touched := append([]tree.Ref{ref}, CompleteCascade(f, ref, done)...)
		for _, r := range touched {
			f = f.Patch(r, func(t *models.Task) { t.SetDone(done, now) })
		}
		return f.Sorted(), touched
	})

	updated, err := m.remote.UpdateStatus(ctx, ref.ID(), done)
	if err != nil {
		m.fail(tx, op, err)
		return fmt.Errorf("update status of %s: %w", ref, err)
	}
	confirmed := map[tree.Ref]models.Task{ref: *updated}
	for _, sub := range updated.Subtasks {
		if r := tree.Confirmed(sub.ID); slices.Contains(tx.refs, r) {
			confirmed[r] = sub
		}
	}
	m.commit(tx, confirmed)
	return nil
}

// CompleteCascade returns the subtasks that follow their parent when its
// done state changes. Completing a top-level task carries along every open
// subtask. Reopening it carries none: subtasks stay done.
func CompleteCascade(f tree.Forest, ref tree.Ref, done bool) []tree.Ref {
	if !done {
		return nil
	}
	var out []tree.Ref
	for _, c := range f.Children(ref) {
		if t, _ := f.Get(c); !t.IsDone {
			out = append(out, c)
		}
	}
	return out
}

// Remove deletes a task (and its subtasks) locally, then on the server.
// A failed removal puts the task back where it was.
func (m *Mutator) Remove(ctx context.Context, ref tree.Ref) error {
	const op = "remove"
	if err := m.target(op, ref); err != nil {
		return err
	}

	var detached tree.Subtree
	tx := m.begin(func(f tree.Forest) (tree.Forest, []tree.Ref) {
		n, st, _ := f.Detach(ref)
		detached = st
		return n, []tree.Ref{ref}
	})
	tx.restore = func(f tree.Forest) tree.Forest {
		return f.Attach(m.revert(detached))
	}

	if err := m.remote.DeleteTask(ctx, ref.ID()); err != nil {
		m.fail(tx, op, err)
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	m.commit(tx, nil)
	m.forget(detached)
	return nil
}

// target rejects refs that cannot be sent to the server.
func (m *Mutator) target(op string, ref tree.Ref) error {
	if ref.IsPending() {
		return invalid(op, fmt.Errorf("%s: %w", ref, ErrPending))
	}
	if _, ok := m.store.State().Forest.Get(ref); !ok {
		return invalid(op, fmt.Errorf("%s: %w", ref, ErrNotFound))
	}
	return nil
}
