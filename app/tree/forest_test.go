package tree

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"todo-sync/app/models"
)

func sampleForest() Forest {
	return FromTasks([]models.Task{
		{ID: "a", Title: "A", Order: 0, Subtasks: []models.Task{
			{ID: "a1", Title: "A1", ParentID: models.StringPtr("a"), Order: 0},
			{ID: "a2", Title: "A2", ParentID: models.StringPtr("a"), Order: 1},
		}},
		{ID: "b", Title: "B", Order: 1},
	})
}

func TestPatch_TopLevelAndSubtask(t *testing.T) {
	f := sampleForest()
	n := f.Patch(Confirmed("a2"), func(t *models.Task) { t.Title = "renamed" })
	n = n.Patch(Confirmed("b"), func(t *models.Task) { t.Comment = "note" })

	if got, _ := n.Get(Confirmed("a2")); got.Title != "renamed" {
		t.Fatalf("expected subtask patched; got %q", got.Title)
	}
	if got, _ := n.Get(Confirmed("b")); got.Comment != "note" {
		t.Fatalf("expected root patched; got %q", got.Comment)
	}
	if got, _ := f.Get(Confirmed("a2")); got.Title != "A2" {
		t.Fatalf("original forest mutated: %q", got.Title)
	}
}

func TestPatch_UnknownRefIsNoop(t *testing.T) {
	f := sampleForest()
	n := f.Patch(Confirmed("nope"), func(t *models.Task) { t.Title = "x" })
	if diff := cmp.Diff(f.Tasks(), n.Tasks()); diff != "" {
		t.Fatalf("unexpected change (-want +got):\n%s", diff)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	f := sampleForest()
	once := f.Remove(Confirmed("a1"))
	twice := once.Remove(Confirmed("a1"))
	if diff := cmp.Diff(once.Tasks(), twice.Tasks()); diff != "" {
		t.Fatalf("second remove changed forest (-once +twice):\n%s", diff)
	}
	if once.Len() != 3 {
		t.Fatalf("expected 3 nodes after removing a subtask; got %d", once.Len())
	}

	root := f.Remove(Confirmed("a"))
	if root.Len() != 1 {
		t.Fatalf("expected parent and subtasks removed; got %d nodes", root.Len())
	}
	if _, ok := root.Get(Confirmed("a1")); ok {
		t.Fatalf("subtask survived parent removal")
	}
}

func TestInsertSubtask_Errors(t *testing.T) {
	f := sampleForest()
	if _, err := f.InsertSubtask(Confirmed("missing"), Pending(1), models.Task{}); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound; got %v", err)
	}
	if _, err := f.InsertSubtask(Confirmed("a1"), Pending(1), models.Task{}); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep; got %v", err)
	}
	n, err := f.InsertSubtask(Confirmed("b"), Pending(1), models.Task{Title: "B1"})
	if err != nil {
		t.Fatalf("InsertSubtask error: %v", err)
	}
	if kids := n.Children(Confirmed("b")); len(kids) != 1 || kids[0] != Pending(1) {
		t.Fatalf("unexpected children: %v", kids)
	}
}

func TestReplace_KeepsPosition(t *testing.T) {
	f := sampleForest()
	f, _ = f.InsertSubtask(Confirmed("a"), Pending(7), models.Task{Title: "tmp"})
	f = f.AppendRoot(Pending(8), models.Task{Title: "root tmp"})
	f = f.Replace(Pending(7), Confirmed("a3"), models.Task{ID: "a3", Title: "A3"})
	f = f.Replace(Pending(8), Confirmed("c"), models.Task{ID: "c", Title: "C"})

	if got := f.Children(Confirmed("a")); !cmp.Equal(got, []Ref{Confirmed("a1"), Confirmed("a2"), Confirmed("a3")}, cmp.AllowUnexported(Ref{})) {
		t.Fatalf("unexpected children: %v", got)
	}
	if got := f.Roots(); got[len(got)-1] != Confirmed("c") {
		t.Fatalf("expected confirmed root last; got %v", got)
	}
	if p, ok := f.Parent(Confirmed("a3")); !ok || p != Confirmed("a") {
		t.Fatalf("expected parent a; got %v %v", p, ok)
	}
}

func TestDetachAttach_RestoresPosition(t *testing.T) {
	f := sampleForest()
	n, st, ok := f.Detach(Confirmed("a"))
	if !ok {
		t.Fatalf("expected detach")
	}
	if diff := cmp.Diff(f.Tasks(), n.Attach(st).Tasks()); diff != "" {
		t.Fatalf("attach did not restore (-want +got):\n%s", diff)
	}

	n, st, _ = f.Detach(Confirmed("a1"))
	if diff := cmp.Diff(f.Tasks(), n.Attach(st).Tasks()); diff != "" {
		t.Fatalf("attach did not restore subtask (-want +got):\n%s", diff)
	}
}

func TestSorted(t *testing.T) {
	early := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	f := FromTasks([]models.Task{
		{ID: "done-early", IsDone: true, CompletedAt: &early},
		{ID: "open-2", Order: 2},
		{ID: "done-late", IsDone: true, CompletedAt: &late},
		{ID: "open-0", Order: 0},
		{ID: "open-0b", Order: 0},
	}).Sorted()

	var got []string
	for _, r := range f.Roots() {
		got = append(got, r.ID())
	}
	want := []string{"open-0", "open-0b", "open-2", "done-late", "done-early"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestSorted_Subtasks(t *testing.T) {
	f := FromTasks([]models.Task{
		{ID: "p", Subtasks: []models.Task{
			{ID: "s-done", IsDone: true, ParentID: models.StringPtr("p")},
			{ID: "s-3", Order: 3, ParentID: models.StringPtr("p")},
			{ID: "s-1", Order: 1, ParentID: models.StringPtr("p")},
		}},
	}).Sorted()

	kids := f.Children(Confirmed("p"))
	if kids[0].ID() != "s-1" || kids[1].ID() != "s-3" || kids[2].ID() != "s-done" {
		t.Fatalf("unexpected subtask order: %v", kids)
	}
}

func TestRef(t *testing.T) {
	if !Pending(3).IsPending() || Confirmed("x").IsPending() {
		t.Fatalf("pending flag wrong")
	}
	if !(Ref{}).IsZero() {
		t.Fatalf("zero ref not zero")
	}
	if Pending(3) == Confirmed("3") {
		t.Fatalf("pending and confirmed refs must differ")
	}
}
