// Package tree holds the in-memory task forest: top-level tasks, each owning
// at most one level of subtasks.
//
// A Forest is an immutable value. Every operation returns a new Forest and
// leaves the receiver untouched, so a reader holding a Forest always sees a
// single consistent snapshot.
package tree

import "strconv"

// Ref identifies a node in the forest. A node is either confirmed by the
// server (it has a server ID) or pending (created locally and still in flight).
type Ref struct {
	id    string
	local uint64
}

// Confirmed returns the ref of a server-confirmed task.
func Confirmed(id string) Ref {
	return Ref{id: id}
}

// Pending returns the ref of a locally created task awaiting confirmation.
func Pending(local uint64) Ref {
	return Ref{local: local}
}

// ID returns the server ID; it is empty for pending refs.
func (r Ref) ID() string {
	return r.id
}

// IsPending reports whether the ref names a speculative node.
func (r Ref) IsPending() bool {
	return r.id == "" && r.local != 0
}

// IsZero reports whether the ref names nothing. The zero Ref stands for the
// forest root when used as a parent.
func (r Ref) IsZero() bool {
	return r.id == "" && r.local == 0
}

func (r Ref) String() string {
	if r.IsPending() {
		return "pending:" + strconv.FormatUint(r.local, 10)
	}
	return r.id
}
