package mutator

import (
	"todo-sync/app/models"
	"todo-sync/app/tree"
)

// txn is one optimistic mutation between its local apply and its settle.
type txn struct {
	stamp    uint64
	refs     []tree.Ref
	snapshot tree.Forest

	// restore undoes the mutation for node rollback. Nil means "put each
	// touched ref back to its confirmed value". It runs with m.mu held.
	restore func(tree.Forest) tree.Forest
}

// begin applies a local change and stamps every ref it touched. A ref's
// confirmed base value is captured by the first mutation in flight on it.
func (m *Mutator) begin(apply func(tree.Forest) (tree.Forest, []tree.Ref)) *txn {
	tx := &txn{}
	m.store.Update(func(f tree.Forest) tree.Forest {
		n, refs := apply(f)
		tx.refs = refs
		tx.snapshot = f

		m.mu.Lock()
		defer m.mu.Unlock()
		m.seq++
		m.open++
		tx.stamp = m.seq
		for _, r := range refs {
			fl, ok := m.flights[r]
			if !ok {
				base, _ := f.Get(r)
				fl = &flight{base: base}
				m.flights[r] = fl
			}
			fl.stamp = tx.stamp
			fl.detached = false
		}
		return n
	})
	return tx
}

// commit settles a successful mutation. Server records replace the local
// node only when no newer mutation on the same ref has been issued; a stale
// record just becomes the new confirmed base.
func (m *Mutator) commit(tx *txn, confirmed map[tree.Ref]models.Task) {
	var stale []tree.Ref
	m.store.Update(func(f tree.Forest) tree.Forest {
		m.mu.Lock()
		defer m.mu.Unlock()
		defer m.settle()
		changed := false
		for _, r := range tx.refs {
			fl, ok := m.flights[r]
			if !ok {
				continue
			}
			rec, has := confirmed[r]
			if fl.stamp != tx.stamp {
				if has {
					fl.base = rec
				}
				stale = append(stale, r)
				continue
			}
			if !has {
				delete(m.flights, r)
				continue
			}
			if _, present := f.Get(r); !present {
				fl.base = rec
				fl.detached = true
				continue
			}
			delete(m.flights, r)
			f = f.Put(r, rec)
			changed = true
		}
		if changed {
			f = f.Sorted()
		}
		return f
	})
	if len(stale) > 0 {
		m.logger.Debug("superseded response kept as base", "refs", stale)
	}
}

// fail rolls a failed mutation back.
func (m *Mutator) fail(tx *txn, op string, err error) {
	if m.rollback == RollbackForest {
		m.store.Update(func(f tree.Forest) tree.Forest {
			m.mu.Lock()
			defer m.mu.Unlock()
			defer m.settle()
			current := false
			for _, r := range tx.refs {
				if fl, ok := m.flights[r]; ok && fl.stamp == tx.stamp {
					delete(m.flights, r)
					current = true
				}
			}
			// A reload or a newer mutation on every ref supersedes the snapshot.
			if !current {
				return f
			}
			return m.reconcile(tx.snapshot)
		})
		m.logger.Warn("mutation failed, forest restored", "op", op, "refs", tx.refs, "err", err)
		return
	}

	var stale []tree.Ref
	m.store.Update(func(f tree.Forest) tree.Forest {
		m.mu.Lock()
		defer m.mu.Unlock()
		defer m.settle()
		for _, r := range tx.refs {
			fl, ok := m.flights[r]
			if !ok || fl.stamp != tx.stamp {
				stale = append(stale, r)
				continue
			}
			if tx.restore != nil {
				delete(m.flights, r)
				f = tx.restore(f)
				continue
			}
			if _, present := f.Get(r); !present {
				// Held by a removal in flight; its restore puts the base back.
				fl.detached = true
				continue
			}
			delete(m.flights, r)
			f = f.Put(r, fl.base)
		}
		return f.Sorted()
	})
	m.logger.Warn("mutation failed, rolled back", "op", op, "refs", tx.refs, "superseded", stale, "err", err)
}

// settle closes one open mutation. Once none is open no rollback can reach
// a detached node or a forest older than the creates that landed, so both
// are dropped. Callers hold m.mu.
func (m *Mutator) settle() {
	m.open--
	if m.open > 0 {
		return
	}
	clear(m.landed)
	for r, fl := range m.flights {
		if fl.detached {
			delete(m.flights, r)
		}
	}
}

// reconcile carries the creates that started or settled after snapshot was
// taken into it. Callers hold m.mu.
func (m *Mutator) reconcile(snapshot tree.Forest) tree.Forest {
	f := snapshot
	for _, r := range pendingRefs(f) {
		if _, live := m.creates[r]; live {
			continue
		}
		e, ok := m.landed[r]
		if !ok {
			f = f.Remove(r)
			continue
		}
		if _, dup := f.Get(e.Ref); dup {
			f = f.Remove(r)
			continue
		}
		f = f.Replace(r, e.Ref, e.Task)
	}
	for r, task := range m.creates {
		if _, ok := f.Get(r); !ok {
			f = place(f, r, task)
		}
	}
	for _, e := range m.landed {
		if _, ok := f.Get(e.Ref); !ok {
			f = place(f, e.Ref, e.Task)
		}
	}
	return f.Sorted()
}

// revert swaps each node of st whose own mutation settled while it was
// detached for that node's confirmed value. Callers hold m.mu.
func (m *Mutator) revert(st tree.Subtree) tree.Subtree {
	pick := func(e tree.Entry) tree.Entry {
		if fl, ok := m.flights[e.Ref]; ok && fl.detached {
			delete(m.flights, e.Ref)
			e.Task = fl.base
		}
		return e
	}
	st.Entry = pick(st.Entry)
	children := make([]tree.Entry, len(st.Children))
	for i, c := range st.Children {
		children[i] = pick(c)
	}
	st.Children = children
	return st
}

// forget drops what is still tracked for a subtree the server deleted.
func (m *Mutator) forget(st tree.Subtree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gone := map[tree.Ref]bool{st.Ref: true}
	for _, c := range st.Children {
		gone[c.Ref] = true
	}
	for r := range gone {
		if fl, ok := m.flights[r]; ok && fl.detached {
			delete(m.flights, r)
		}
	}
	for p, e := range m.landed {
		if gone[e.Ref] {
			delete(m.landed, p)
		}
	}
}

func pendingRefs(f tree.Forest) []tree.Ref {
	var out []tree.Ref
	for _, r := range f.Roots() {
		if r.IsPending() {
			out = append(out, r)
		}
		for _, c := range f.Children(r) {
			if c.IsPending() {
				out = append(out, c)
			}
		}
	}
	return out
}

// place inserts task under its parent, or as a root when it has none. A task
// whose parent is gone is left out.
func place(f tree.Forest, r tree.Ref, task models.Task) tree.Forest {
	if task.ParentID == nil || *task.ParentID == "" {
		return f.AppendRoot(r, task)
	}
	n, err := f.InsertSubtask(tree.Confirmed(*task.ParentID), r, task)
	if err != nil {
		return f
	}
	return n
}
