package tree

import (
	"cmp"
	"slices"

	"todo-sync/app/models"
)

// Compare orders sibling tasks: open tasks before done ones, open tasks by
// ascending Order, done tasks by most recent completion first.
func Compare(a, b models.Task) int {
	if a.IsDone != b.IsDone {
		if a.IsDone {
			return 1
		}
		return -1
	}
	if !a.IsDone {
		return cmp.Compare(a.Order, b.Order)
	}
	switch {
	case a.CompletedAt == nil && b.CompletedAt == nil:
		return 0
	case a.CompletedAt == nil:
		return 1
	case b.CompletedAt == nil:
		return -1
	}
	return b.CompletedAt.Compare(*a.CompletedAt)
}

// SortTasks sorts siblings in place with Compare. Equal keys keep their order.
func SortTasks(tasks []models.Task) {
	slices.SortStableFunc(tasks, Compare)
}

func (f Forest) sortRefs(refs []Ref) []Ref {
	out := slices.Clone(refs)
	slices.SortStableFunc(out, func(a, b Ref) int {
		return Compare(f.nodes[a], f.nodes[b])
	})
	return out
}

// Sorted returns the forest with the roots and every subtask list ordered by Compare.
func (f Forest) Sorted() Forest {
	n := f
	n.roots = f.sortRefs(f.roots)
	n.children = make(map[Ref][]Ref, len(f.children))
	for p, kids := range f.children {
		n.children[p] = f.sortRefs(kids)
	}
	return n
}
