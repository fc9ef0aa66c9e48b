package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Store is the storage collaborator for the task core. The service never
// touches SQL directly; everything it needs from the database goes through
// this interface.
type Store interface {
	ListTasks(ctx context.Context, f Filters) ([]Task, error)
	CountTasks(ctx context.Context, f Filters) (int, error)
	GetTask(ctx context.Context, taskID, callerID int64) (Task, error)

	GroupShells(ctx context.Context, projectID int64, dim GroupDimension) ([]Group, error)
	StatusCategories(ctx context.Context, projectID int64) (map[int64]StatusCategory, error)
	StatusCategory(ctx context.Context, statusID int64) (StatusCategory, error)
	StatusColor(ctx context.Context, statusID int64) (string, error)

	UnfinishedDependencyCount(ctx context.Context, taskID int64) (int, error)

	UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error
	MaxPosition(ctx context.Context, projectID int64, parentID *int64) (int, bool, error)
	SetParent(ctx context.Context, taskID int64, parentID *int64, projectID int64, position int) error
	ReplaceLabels(ctx context.Context, taskID int64, labelIDs []int64) error
	SetColumnValue(ctx context.Context, taskID, columnID int64, value string) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ListTasks(ctx context.Context, f Filters) ([]Task, error) {
	query, args, err := BuildListQuery(f)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var result []Task
	for rows.Next() {
		var (
			t        Task
			parentID sql.NullInt64
			phaseID  sql.NullInt64
			members  pq.Int64Array
			labels   pq.Int64Array
		)
		if err := rows.Scan(
			&t.ID, &t.DisplayKey, &t.Name, &t.ProjectID, &parentID,
			&t.StatusID, &t.PriorityID, &phaseID, &t.Archived, &t.Position,
			&t.CreatedAt, &t.UpdatedAt,
			&t.SubtaskCount, &t.DoneSubtaskCount,
			&members, &labels,
			&t.CommentCount, &t.AttachmentCount,
			&t.EstimatedMinutes, &t.LoggedMinutes,
			&t.HasDependencies, &t.HasWatchers,
			&t.MyTimerRunning,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ParentID = nullableID(parentID)
		t.PhaseID = nullableID(phaseID)
		t.AssigneeIDs = members
		t.LabelIDs = labels
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return result, nil
}

func (s *SQLStore) CountTasks(ctx context.Context, f Filters) (int, error) {
	query, args, err := BuildCountQuery(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// GetTask fetches one task and decorates it. The decoration reads are
// mutually independent, so they run together; all of them finish before
// the record is returned.
func (s *SQLStore) GetTask(ctx context.Context, taskID, callerID int64) (Task, error) {
	var (
		t        Task
		parentID sql.NullInt64
		phaseID  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.display_key, t.name, t.project_id, t.parent_id,
		       t.status_id, t.priority_id, t.phase_id, t.archived, t.position,
		       t.created_at, t.updated_at
		FROM tasks t
		WHERE t.id = $1
	`, taskID).Scan(
		&t.ID, &t.DisplayKey, &t.Name, &t.ProjectID, &parentID,
		&t.StatusID, &t.PriorityID, &phaseID, &t.Archived, &t.Position,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	t.ParentID = nullableID(parentID)
	t.PhaseID = nullableID(phaseID)

	var wg sync.WaitGroup
	errs := make([]error, 7)

	run := func(i int, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn()
		}()
	}

	run(0, func() error {
		var members pq.Int64Array
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(array_agg(ta.member_id ORDER BY ta.member_id), '{}')
			FROM task_assignees ta WHERE ta.task_id = $1
		`, taskID).Scan(&members)
		t.AssigneeIDs = members
		return err
	})
	run(1, func() error {
		var labels pq.Int64Array
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(array_agg(tl.label_id ORDER BY tl.label_id), '{}')
			FROM task_labels tl WHERE tl.task_id = $1
		`, taskID).Scan(&labels)
		t.LabelIDs = labels
		return err
	})
	run(2, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE sc.category = 'done')
			FROM tasks c JOIN statuses sc ON sc.id = c.status_id
			WHERE c.parent_id = $1
		`, taskID).Scan(&t.SubtaskCount, &t.DoneSubtaskCount)
	})
	run(3, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT (SELECT COUNT(*) FROM comments c WHERE c.task_id = $1),
			       (SELECT COUNT(*) FROM attachments a WHERE a.task_id = $1)
		`, taskID).Scan(&t.CommentCount, &t.AttachmentCount)
	})
	run(4, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(te.estimated_minutes), 0),
			       COALESCE(SUM(te.minutes), 0)
			FROM time_entries te WHERE te.task_id = $1
		`, taskID).Scan(&t.EstimatedMinutes, &t.LoggedMinutes)
	})
	run(5, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM dependencies d WHERE d.task_id = $1),
			       EXISTS (SELECT 1 FROM watchers wt WHERE wt.task_id = $1)
		`, taskID).Scan(&t.HasDependencies, &t.HasWatchers)
	})
	run(6, func() error {
		if callerID == 0 {
			return nil
		}
		return s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM time_entries te
				WHERE te.task_id = $1 AND te.user_id = $2 AND te.running
			)
		`, taskID, callerID).Scan(&t.MyTimerRunning)
	})

	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return Task{}, fmt.Errorf("decorate task %d: %w", taskID, e)
		}
	}
	return t, nil
}

func (s *SQLStore) GroupShells(ctx context.Context, projectID int64, dim GroupDimension) ([]Group, error) {
	var (
		rows *sql.Rows
		err  error
	)
	withDates := false

	switch dim {
	case GroupByStatus:
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, color FROM statuses
			WHERE project_id = $1 ORDER BY position, id
		`, projectID)
	case GroupByPriority:
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, color FROM priorities ORDER BY position, id
		`)
	case GroupByPhase:
		withDates = true
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, color, starts_on, ends_on FROM phases
			WHERE project_id = $1 ORDER BY position, id
		`, projectID)
	case GroupByLabel:
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, name, color FROM labels
			WHERE project_id = $1 ORDER BY name, id
		`, projectID)
	default:
		return nil, fmt.Errorf("%w: unknown group dimension %q", ErrInvalidFilter, dim)
	}
	if err != nil {
		return nil, fmt.Errorf("group shells: %w", err)
	}
	defer rows.Close()

	var shells []Group
	for rows.Next() {
		g := Group{Dimension: dim}
		if withDates {
			var starts, ends sql.NullTime
			if err := rows.Scan(&g.Key, &g.Name, &g.Color, &starts, &ends); err != nil {
				return nil, fmt.Errorf("scan shell: %w", err)
			}
			g.StartsOn = nullableTime(starts)
			g.EndsOn = nullableTime(ends)
		} else {
			if err := rows.Scan(&g.Key, &g.Name, &g.Color); err != nil {
				return nil, fmt.Errorf("scan shell: %w", err)
			}
		}
		shells = append(shells, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("group shells: %w", err)
	}
	return shells, nil
}

func (s *SQLStore) StatusCategories(ctx context.Context, projectID int64) (map[int64]StatusCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category FROM statuses WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("status categories: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]StatusCategory)
	for rows.Next() {
		var id int64
		var cat string
		if err := rows.Scan(&id, &cat); err != nil {
			return nil, fmt.Errorf("scan status category: %w", err)
		}
		out[id] = StatusCategory(cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status categories: %w", err)
	}
	return out, nil
}

func (s *SQLStore) StatusCategory(ctx context.Context, statusID int64) (StatusCategory, error) {
	var cat string
	err := s.db.QueryRowContext(ctx, `
		SELECT category FROM statuses WHERE id = $1
	`, statusID).Scan(&cat)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("status %d: %w", statusID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("status category: %w", err)
	}
	return StatusCategory(cat), nil
}

func (s *SQLStore) StatusColor(ctx context.Context, statusID int64) (string, error) {
	var color string
	err := s.db.QueryRowContext(ctx, `
		SELECT color FROM statuses WHERE id = $1
	`, statusID).Scan(&color)
	if err != nil {
		return "", fmt.Errorf("status color: %w", err)
	}
	return color, nil
}

// UnfinishedDependencyCount looks one hop out: the tasks this task depends
// on whose status is not in the done category.
func (s *SQLStore) UnfinishedDependencyCount(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM dependencies d
		JOIN tasks dt ON dt.id = d.depends_on_id
		JOIN statuses ds ON ds.id = dt.status_id
		WHERE d.task_id = $1 AND ds.category <> 'done'
	`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("dependency count: %w", err)
	}
	return n, nil
}

func (s *SQLStore) UpdateTaskStatus(ctx context.Context, taskID, statusID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status_id = $1, updated_at = now() WHERE id = $2
	`, statusID, taskID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return nil
}

// MaxPosition reports the highest manual position in the destination scope:
// a parent's children, or the whole project for root placement. ok is false
// when the scope holds no tasks.
func (s *SQLStore) MaxPosition(ctx context.Context, projectID int64, parentID *int64) (int, bool, error) {
	var max sql.NullInt64
	var err error
	if parentID != nil {
		err = s.db.QueryRowContext(ctx, `
			SELECT MAX(position) FROM tasks WHERE parent_id = $1
		`, *parentID).Scan(&max)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT MAX(position) FROM tasks WHERE project_id = $1
		`, projectID).Scan(&max)
	}
	if err != nil {
		return 0, false, fmt.Errorf("max position: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

func (s *SQLStore) SetParent(ctx context.Context, taskID int64, parentID *int64, projectID int64, position int) error {
	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET parent_id = $1, project_id = $2, position = $3, updated_at = now()
		WHERE id = $4
	`, parent, projectID, position, taskID)
	if err != nil {
		return fmt.Errorf("set parent: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return nil
}

// ReplaceLabels swaps the task's label set in one transaction. Either the
// whole new set is visible afterwards or nothing changed.
func (s *SQLStore) ReplaceLabels(ctx context.Context, taskID int64, labelIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace labels: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM task_labels WHERE task_id = $1
	`, taskID); err != nil {
		return fmt.Errorf("replace labels: %w", err)
	}

	for _, labelID := range labelIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_labels (task_id, label_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, taskID, labelID); err != nil {
			return fmt.Errorf("replace labels: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace labels: %w", err)
	}
	return nil
}

func (s *SQLStore) SetColumnValue(ctx context.Context, taskID, columnID int64, value string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM custom_columns WHERE id = $1)
	`, columnID).Scan(&exists); err != nil {
		return fmt.Errorf("column lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("column %d: %w", columnID, ErrNotFound)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_values (column_id, task_id, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (column_id, task_id) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
	`, columnID, taskID, value)
	if err != nil {
		return fmt.Errorf("set column value: %w", err)
	}
	return nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := v.Time
	return &ts
}
