package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"todo-sync/app/models"
)

const taskColumns = "t.id AS id, t.title AS title, t.is_done AS is_done, t.`order` AS `order`, " +
	"t.priority AS priority, t.project_id AS project_id, t.section_id AS section_id, " +
	"t.deadline AS deadline, t.reminder_at AS reminder_at, t.comment AS comment, " +
	"t.completed_at AS completed_at, p.id AS parent_id"

// TaskService stores tasks in Neo4j. Subtasks point at their parent with a
// HAS_PARENT relationship.
type TaskService struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(driver neo4j.DriverWithContext, database string) *TaskService {
	return &TaskService{driver: driver, database: database}
}

func (s *TaskService) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// List implements Repository.
func (s *TaskService) List(ctx context.Context, filter models.Filter) ([]models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return queryTasks(ctx, tx,
			"MATCH (t:Task) "+
				"OPTIONAL MATCH (t)-[:HAS_PARENT]->(p:Task) "+
				"RETURN "+taskColumns+" ORDER BY t.created_at",
			nil,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return filterNest(result.([]models.Task), filter), nil
}

// Get implements Repository.
func (s *TaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return getTask(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Task), nil
}

// Create implements Repository.
func (s *TaskService) Create(ctx context.Context, in models.CreateInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, invalidErr(err)
	}
	task := in.Task()
	task.ID = uuid.New().String()

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if task.ParentID != nil {
			if err := checkParent(ctx, tx, *task.ParentID); err != nil {
				return nil, err
			}
		}

		props := taskProps(task)
		props["id"] = task.ID
		props["created_at"] = time.Now().UTC()
		if _, err := tx.Run(ctx, "CREATE (t:Task) SET t = $props", map[string]any{"props": props}); err != nil {
			return nil, err
		}

		if task.ParentID != nil {
			_, err := tx.Run(ctx,
				"MATCH (child:Task {id: $childID}), (parent:Task {id: $parentID}) "+
					"CREATE (child)-[:HAS_PARENT]->(parent)",
				map[string]any{
					"childID":  task.ID,
					"parentID": *task.ParentID,
				},
			)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// Update implements Repository.
func (s *TaskService) Update(ctx context.Context, id string, patch models.Patch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalidErr(err)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		task, err := getTask(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		patch.Apply(task)
		if task.ReminderAt != nil && task.Deadline == nil {
			return nil, invalidf("reminder_at requires a deadline")
		}
		// += drops properties set to null, which clears them.
		_, err = tx.Run(ctx,
			"MATCH (t:Task {id: $id}) SET t += $props",
			map[string]any{"id": id, "props": taskProps(*task)},
		)
		return task, err
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Task), nil
}

// SetDone implements Repository.
func (s *TaskService) SetDone(ctx context.Context, id string, done bool, at time.Time) (*models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		task, err := getTask(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if task.IsDone != done {
			task.SetDone(done, at)
			_, err := tx.Run(ctx,
				"MATCH (t:Task {id: $id}) SET t.is_done = $done, t.completed_at = $completedAt",
				map[string]any{"id": id, "done": done, "completedAt": timeOrNil(task.CompletedAt)},
			)
			if err != nil {
				return nil, err
			}
		}
		if !done {
			return task, nil
		}
		// Completing a parent completes its open subtasks.
		_, err = tx.Run(ctx,
			"MATCH (c:Task)-[:HAS_PARENT]->(t:Task {id: $id}) "+
				"WHERE coalesce(c.is_done, false) = false "+
				"SET c.is_done = true, c.completed_at = $at",
			map[string]any{"id": id, "at": at},
		)
		if err != nil {
			return nil, err
		}
		return getTask(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Task), nil
}

// Delete implements Repository.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := getTask(ctx, tx, id); err != nil {
			return nil, err
		}

		// First, remove child tasks
		_, err := tx.Run(ctx,
			"MATCH (child:Task)-[:HAS_PARENT]->(t:Task {id: $id}) "+
				"DETACH DELETE child",
			map[string]any{"id": id},
		)
		if err != nil {
			return nil, err
		}

		// Now, delete the task itself
		_, err = tx.Run(ctx,
			"MATCH (t:Task {id: $id}) "+
				"DETACH DELETE t",
			map[string]any{"id": id},
		)
		return nil, err
	})
	return err
}

// checkParent rejects parents that are missing or are subtasks themselves.
func checkParent(ctx context.Context, tx neo4j.ManagedTransaction, parentID string) error {
	res, err := tx.Run(ctx,
		"MATCH (p:Task {id: $id}) "+
			"OPTIONAL MATCH (p)-[:HAS_PARENT]->(gp:Task) "+
			"RETURN gp IS NULL AS top",
		map[string]any{"id": parentID},
	)
	if err != nil {
		return err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return invalidf("parent %s not found", parentID)
	}
	if top, _ := records[0].Get("top"); top != true {
		return invalidf("parent %s is a subtask", parentID)
	}
	return nil
}

// getTask loads one task and, for top-level tasks, its subtasks.
func getTask(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*models.Task, error) {
	tasks, err := queryTasks(ctx, tx,
		"MATCH (t:Task {id: $id}) "+
			"OPTIONAL MATCH (t)-[:HAS_PARENT]->(p:Task) "+
			"RETURN "+taskColumns,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	task := tasks[0]
	if task.IsSubtask() {
		return &task, nil
	}

	subtasks, err := queryTasks(ctx, tx,
		"MATCH (t:Task)-[:HAS_PARENT]->(p:Task {id: $id}) "+
			"RETURN "+taskColumns+" ORDER BY t.created_at",
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	task.Subtasks = subtasks
	return &task, nil
}

func queryTasks(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]models.Task, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(records))
	for _, record := range records {
		t, err := recordTask(record)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func recordTask(record *neo4j.Record) (models.Task, error) {
	var t models.Task
	var err error
	get := func(key string) any {
		v, _ := record.Get(key)
		return v
	}

	t.ID, _ = get("id").(string)
	t.Title, _ = get("title").(string)
	t.IsDone, _ = get("is_done").(bool)
	t.Comment, _ = get("comment").(string)
	switch v := get("order").(type) {
	case float64:
		t.Order = v
	case int64:
		t.Order = float64(v)
	}
	if v, ok := get("priority").(int64); ok {
		t.Priority = int(v)
	}
	t.ParentID = stringOrNil(get("parent_id"))
	t.ProjectID = stringOrNil(get("project_id"))
	t.SectionID = stringOrNil(get("section_id"))
	if v, ok := get("deadline").(string); ok {
		d, perr := models.ParseDate(v)
		if perr != nil {
			err = perr
		}
		t.Deadline = &d
	}
	if v, ok := get("reminder_at").(string); ok {
		c, perr := models.ParseClock(v)
		if perr != nil {
			err = perr
		}
		t.ReminderAt = &c
	}
	if v, ok := get("completed_at").(time.Time); ok {
		t.CompletedAt = &v
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("decode task %s: %w", t.ID, err)
	}
	return t, nil
}

// taskProps maps the stored properties of t. Absent values are nil so
// that SET += removes them.
func taskProps(t models.Task) map[string]any {
	props := map[string]any{
		"title":        t.Title,
		"is_done":      t.IsDone,
		"order":        t.Order,
		"priority":     int64(t.Priority),
		"comment":      t.Comment,
		"project_id":   nil,
		"section_id":   nil,
		"deadline":     nil,
		"reminder_at":  nil,
		"completed_at": timeOrNil(t.CompletedAt),
	}
	if t.ProjectID != nil {
		props["project_id"] = *t.ProjectID
	}
	if t.SectionID != nil {
		props["section_id"] = *t.SectionID
	}
	if t.Deadline != nil {
		props["deadline"] = t.Deadline.String()
	}
	if t.ReminderAt != nil {
		props["reminder_at"] = t.ReminderAt.String()
	}
	return props
}

func stringOrNil(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
