package services

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"todo-sync/app/models"
)

// MemoryRepository keeps tasks in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
	ids   []string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]models.Task)}
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, filter models.Filter) ([]models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flat := make([]models.Task, 0, len(r.ids))
	for _, id := range r.ids {
		flat = append(flat, r.tasks[id])
	}
	return filterNest(flat, filter), nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return r.withSubtasks(t), nil
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, in models.CreateInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, invalidErr(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if in.ParentID != nil {
		parent, ok := r.tasks[*in.ParentID]
		if !ok {
			return nil, invalidf("parent %s not found", *in.ParentID)
		}
		if parent.IsSubtask() {
			return nil, invalidf("parent %s is a subtask", *in.ParentID)
		}
	}

	t := in.Task()
	t.ID = uuid.New().String()
	r.tasks[t.ID] = t
	r.ids = append(r.ids, t.ID)
	return &t, nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, id string, patch models.Patch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalidErr(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	patch.Apply(&t)
	if t.ReminderAt != nil && t.Deadline == nil {
		return nil, invalidf("reminder_at requires a deadline")
	}
	r.tasks[id] = t
	return r.withSubtasks(t), nil
}

// SetDone implements Repository.
func (r *MemoryRepository) SetDone(_ context.Context, id string, done bool, at time.Time) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.IsDone != done {
		t.SetDone(done, at)
		r.tasks[id] = t
	}
	if done {
		for _, cid := range r.ids {
			c := r.tasks[cid]
			if c.IsSubtask() && *c.ParentID == id && !c.IsDone {
				c.SetDone(true, at)
				r.tasks[cid] = c
			}
		}
	}
	return r.withSubtasks(t), nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	gone := map[string]bool{id: true}
	for _, cid := range r.ids {
		if c := r.tasks[cid]; c.IsSubtask() && *c.ParentID == id {
			gone[cid] = true
		}
	}
	for gid := range gone {
		delete(r.tasks, gid)
	}
	r.ids = slices.DeleteFunc(r.ids, func(s string) bool { return gone[s] })
	return nil
}

// withSubtasks copies t and attaches its subtasks. Callers hold r.mu.
func (r *MemoryRepository) withSubtasks(t models.Task) *models.Task {
	t.Subtasks = nil
	if !t.IsSubtask() {
		for _, cid := range r.ids {
			if c := r.tasks[cid]; c.IsSubtask() && *c.ParentID == t.ID {
				t.Subtasks = append(t.Subtasks, c)
			}
		}
	}
	return &t
}

// Import loads tasks in the nested wire shape, keeping their IDs. Existing
// tasks with the same ID are replaced.
func (r *MemoryRepository) Import(tasks []models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	put := func(t models.Task) {
		t.Subtasks = nil
		if _, exists := r.tasks[t.ID]; !exists {
			r.ids = append(r.ids, t.ID)
		}
		r.tasks[t.ID] = t
	}
	for _, t := range tasks {
		if t.ID == "" {
			return invalidf("imported task %q has no id", t.Title)
		}
		if t.IsSubtask() {
			return invalidf("imported task %s must be top-level", t.ID)
		}
		subs := t.Subtasks
		put(t)
		for _, s := range subs {
			if s.ID == "" {
				return invalidf("imported subtask %q has no id", s.Title)
			}
			s.ParentID = &t.ID
			put(s)
		}
	}
	return nil
}
