package services

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"todo-sync/app/models"
)

func TestRecordTaskRoundTrip(t *testing.T) {
	done := time.Date(2024, time.January, 9, 8, 0, 0, 0, time.UTC)
	want := models.Task{
		ID:          "t1",
		Title:       "Book hotel",
		IsDone:      true,
		Order:       2,
		Priority:    1,
		ParentID:    models.StringPtr("p"),
		ProjectID:   models.StringPtr("trip"),
		Deadline:    &models.Date{Year: 2024, Month: time.January, Day: 9},
		ReminderAt:  &models.Clock{Hour: 7, Minute: 45},
		Comment:     "near the station",
		CompletedAt: &done,
	}

	props := taskProps(want)
	props["id"] = want.ID
	props["parent_id"] = *want.ParentID
	record := &neo4j.Record{}
	for k, v := range props {
		record.Keys = append(record.Keys, k)
		record.Values = append(record.Values, v)
	}

	got, err := recordTask(record)
	if err != nil {
		t.Fatalf("recordTask error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskPropsClearsAbsentFields(t *testing.T) {
	props := taskProps(models.Task{Title: "x", Priority: 4})
	for _, key := range []string{"project_id", "section_id", "deadline", "reminder_at", "completed_at"} {
		v, ok := props[key]
		if !ok || v != nil {
			t.Fatalf("%s: expected explicit nil so SET += removes it; got %v", key, v)
		}
	}
}

func TestFilterNest_SubtasksFollowParent(t *testing.T) {
	flat := []models.Task{
		{ID: "a", ProjectID: models.StringPtr("w")},
		{ID: "a1", ParentID: models.StringPtr("a")},
		{ID: "b", IsDone: true},
		{ID: "b1", ParentID: models.StringPtr("b")},
	}

	got := filterNest(flat, models.Filter{ProjectID: models.StringPtr("w")})
	if len(got) != 1 || got[0].ID != "a" || len(got[0].Subtasks) != 1 {
		t.Fatalf("expected a with its subtask; got %+v", got)
	}
	if got := filterNest(flat, models.Filter{}); len(got) != 1 {
		t.Fatalf("open subtask of a done parent must be hidden; got %+v", got)
	}
}
