package tree

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"todo-sync/app/models"
)

var (
	// ErrParentNotFound is returned when a subtask is attached to a missing parent.
	ErrParentNotFound = errors.New("parent task not found")
	// ErrTooDeep is returned when a subtask would be attached to another subtask.
	ErrTooDeep = errors.New("subtasks cannot have subtasks")
)

// Forest is a two-level task forest stored as a flat node map plus a
// parent to children index. The zero value is an empty forest.
type Forest struct {
	nodes    map[Ref]models.Task
	roots    []Ref
	children map[Ref][]Ref
	parent   map[Ref]Ref
}

// Entry is a node together with its ref.
type Entry struct {
	Ref  Ref
	Task models.Task
}

// Subtree is a node detached from a forest, remembering where it lived.
type Subtree struct {
	Entry
	Parent   Ref
	Index    int
	Children []Entry
}

// FromTasks builds a forest from the nested wire shape. Anything nested
// deeper than one level is dropped.
func FromTasks(tasks []models.Task) Forest {
	f := Forest{
		nodes:    make(map[Ref]models.Task),
		children: make(map[Ref][]Ref),
		parent:   make(map[Ref]Ref),
	}
	for _, t := range tasks {
		ref := Confirmed(t.ID)
		subs := t.Subtasks
		t.Subtasks = nil
		f.nodes[ref] = t
		f.roots = append(f.roots, ref)
		for _, s := range subs {
			cref := Confirmed(s.ID)
			s.Subtasks = nil
			f.nodes[cref] = s
			f.children[ref] = append(f.children[ref], cref)
			f.parent[cref] = ref
		}
	}
	return f
}

// Len returns the number of nodes, subtasks included.
func (f Forest) Len() int {
	return len(f.nodes)
}

// Get returns the node stored under ref.
func (f Forest) Get(ref Ref) (models.Task, bool) {
	t, ok := f.nodes[ref]
	return t, ok
}

// Roots returns the top-level refs in order.
func (f Forest) Roots() []Ref {
	return slices.Clone(f.roots)
}

// Children returns the subtask refs of ref in order.
func (f Forest) Children(ref Ref) []Ref {
	return slices.Clone(f.children[ref])
}

// Parent returns the parent of ref. ok is false for top-level nodes.
func (f Forest) Parent(ref Ref) (Ref, bool) {
	p, ok := f.parent[ref]
	return p, ok
}

// Siblings returns the refs sharing ref's parent (the zero Ref for the top level).
func (f Forest) Siblings(parent Ref) []Ref {
	if parent.IsZero() {
		return f.Roots()
	}
	return f.Children(parent)
}

// Position reports where ref sits: its parent and index among its siblings.
func (f Forest) Position(ref Ref) (parent Ref, index int, ok bool) {
	if _, ok := f.nodes[ref]; !ok {
		return Ref{}, 0, false
	}
	parent = f.parent[ref]
	return parent, slices.Index(f.Siblings(parent), ref), true
}

// Tasks exports the forest in the nested wire shape.
func (f Forest) Tasks() []models.Task {
	out := make([]models.Task, 0, len(f.roots))
	for _, r := range f.roots {
		t := f.nodes[r]
		t.Subtasks = nil
		for _, c := range f.children[r] {
			t.Subtasks = append(t.Subtasks, f.nodes[c])
		}
		out = append(out, t)
	}
	return out
}

// Patch returns a forest where fn has been applied to the node under ref.
// Unknown refs leave the forest unchanged.
func (f Forest) Patch(ref Ref, fn func(*models.Task)) Forest {
	t, ok := f.nodes[ref]
	if !ok {
		return f
	}
	fn(&t)
	t.Subtasks = nil
	n := f
	n.nodes = maps.Clone(f.nodes)
	n.nodes[ref] = t
	return n
}

// Put overwrites the node under ref. Unknown refs leave the forest unchanged.
func (f Forest) Put(ref Ref, t models.Task) Forest {
	return f.Patch(ref, func(dst *models.Task) { *dst = t })
}

// Remove deletes ref and its subtasks. Removing an unknown ref is a no-op.
func (f Forest) Remove(ref Ref) Forest {
	n, _, _ := f.Detach(ref)
	return n
}

// Detach removes ref and its subtasks and returns them as a Subtree that
// Attach can put back.
func (f Forest) Detach(ref Ref) (Forest, Subtree, bool) {
	t, ok := f.nodes[ref]
	if !ok {
		return f, Subtree{}, false
	}
	parent, index, _ := f.Position(ref)
	st := Subtree{Entry: Entry{Ref: ref, Task: t}, Parent: parent, Index: index}

	n := f.clone()
	for _, c := range f.children[ref] {
		st.Children = append(st.Children, Entry{Ref: c, Task: f.nodes[c]})
		delete(n.nodes, c)
		delete(n.parent, c)
	}
	delete(n.children, ref)
	delete(n.nodes, ref)
	delete(n.parent, ref)
	if parent.IsZero() {
		n.roots = slices.Delete(n.roots, index, index+1)
	} else {
		kids := slices.Delete(slices.Clone(n.children[parent]), index, index+1)
		if len(kids) == 0 {
			delete(n.children, parent)
		} else {
			n.children[parent] = kids
		}
	}
	return n, st, true
}

// Attach reinserts a detached subtree at its recorded position, clamped to
// the current sibling count. A subtree whose parent has gone is dropped, and
// one whose ref already exists is ignored.
func (f Forest) Attach(st Subtree) Forest {
	if _, exists := f.nodes[st.Ref]; exists {
		return f
	}
	if !st.Parent.IsZero() {
		if _, ok := f.nodes[st.Parent]; !ok {
			return f
		}
	}
	n := f.insert(st.Parent, st.Index, st.Ref, st.Task)
	for _, c := range st.Children {
		if _, exists := n.nodes[c.Ref]; exists {
			continue
		}
		n.nodes[c.Ref] = c.Task
		n.children[st.Ref] = append(n.children[st.Ref], c.Ref)
		n.parent[c.Ref] = st.Ref
	}
	return n
}

// AppendRoot adds a top-level node after the existing roots.
func (f Forest) AppendRoot(ref Ref, t models.Task) Forest {
	return f.insert(Ref{}, len(f.roots), ref, t)
}

// InsertSubtask appends a node to parent's subtasks.
func (f Forest) InsertSubtask(parent, ref Ref, t models.Task) (Forest, error) {
	if _, ok := f.nodes[parent]; !ok {
		return f, fmt.Errorf("insert %s under %s: %w", ref, parent, ErrParentNotFound)
	}
	if _, nested := f.parent[parent]; nested {
		return f, fmt.Errorf("insert %s under %s: %w", ref, parent, ErrTooDeep)
	}
	return f.insert(parent, len(f.children[parent]), ref, t), nil
}

// Replace swaps the node under old for t stored under ref, keeping its
// position and subtasks. Unknown refs leave the forest unchanged.
func (f Forest) Replace(old, ref Ref, t models.Task) Forest {
	if _, ok := f.nodes[old]; !ok {
		return f
	}
	if old == ref {
		return f.Put(ref, t)
	}
	t.Subtasks = nil
	n := f.clone()
	delete(n.nodes, old)
	n.nodes[ref] = t
	if p, ok := f.parent[old]; ok {
		delete(n.parent, old)
		n.parent[ref] = p
		n.children[p] = swap(n.children[p], old, ref)
	} else {
		n.roots = swap(n.roots, old, ref)
	}
	if kids, ok := f.children[old]; ok {
		delete(n.children, old)
		n.children[ref] = slices.Clone(kids)
		for _, c := range kids {
			n.parent[c] = ref
		}
	}
	return n
}

func (f Forest) insert(parent Ref, index int, ref Ref, t models.Task) Forest {
	t.Subtasks = nil
	n := f.clone()
	n.nodes[ref] = t
	if parent.IsZero() {
		index = min(max(index, 0), len(n.roots))
		n.roots = slices.Insert(n.roots, index, ref)
		return n
	}
	kids := slices.Clone(n.children[parent])
	index = min(max(index, 0), len(kids))
	n.children[parent] = slices.Insert(kids, index, ref)
	n.parent[ref] = parent
	return n
}

// clone copies the index maps. Child slices stay shared and must be cloned
// before they are modified.
func (f Forest) clone() Forest {
	n := Forest{
		nodes:    maps.Clone(f.nodes),
		roots:    slices.Clone(f.roots),
		children: maps.Clone(f.children),
		parent:   maps.Clone(f.parent),
	}
	if n.nodes == nil {
		n.nodes = make(map[Ref]models.Task)
	}
	if n.children == nil {
		n.children = make(map[Ref][]Ref)
	}
	if n.parent == nil {
		n.parent = make(map[Ref]Ref)
	}
	return n
}

func swap(refs []Ref, old, ref Ref) []Ref {
	out := slices.Clone(refs)
	if i := slices.Index(out, old); i >= 0 {
		out[i] = ref
	}
	return out
}
