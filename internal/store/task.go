package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/model"
)

type TaskStore struct {
	db Querier
}

func NewTaskStore(db Querier) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to tx.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

// --- Task methods ---

const taskCols = `id, description, points, assigned_to, status, duration_value, duration_unit, created_at, completed_at`

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var assignedTo sql.NullInt64
	var durationValue sql.NullInt64
	var durationUnit sql.NullString
	var completedAt sql.NullTime

	err := sc.Scan(
		&t.ID, &t.Description, &t.Points, &assignedTo, &t.Status,
		&durationValue, &durationUnit, &t.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AssignedTo = int64Ptr(assignedTo)
	if durationValue.Valid && durationUnit.Valid {
		t.Duration = &model.TaskDuration{
			Value: int(durationValue.Int64),
			Unit:  model.DurationUnit(durationUnit.String),
		}
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

func durationArgs(d *model.TaskDuration) (sql.NullInt64, sql.NullString) {
	if d == nil {
		return sql.NullInt64{}, sql.NullString{}
	}
	return sql.NullInt64{Int64: int64(d.Value), Valid: true}, sql.NullString{String: string(d.Unit), Valid: true}
}

func (s *TaskStore) Create(description string, points int, assignedTo *int64, duration *model.TaskDuration, createdAt time.Time) (*model.Task, error) {
	dv, du := durationArgs(duration)
	result, err := s.db.Exec(
		`INSERT INTO tasks (description, points, assigned_to, status, duration_value, duration_unit, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		description, points, nullInt64(assignedTo), model.TaskPending, dv, du, createdAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// TaskFilter narrows List. Zero fields match everything.
type TaskFilter struct {
	Status     model.TaskStatus
	AssignedTo *int64
}

func (s *TaskStore) List(f TaskFilter) ([]model.Task, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != nil {
		where = append(where, "assigned_to = ?")
		args = append(args, *f.AssignedTo)
	}

	query := `SELECT ` + taskCols + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update edits a pending task. Completed tasks are left untouched and
// reported with ok == false.
func (s *TaskStore) Update(id int64, description string, points int, assignedTo *int64, duration *model.TaskDuration) (*model.Task, bool, error) {
	dv, du := durationArgs(duration)
	result, err := s.db.Exec(
		`UPDATE tasks SET description = ?, points = ?, assigned_to = ?, duration_value = ?, duration_unit = ? WHERE id = ? AND status = ?`,
		description, points, nullInt64(assignedTo), dv, du, id, model.TaskPending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	t, err := s.GetByID(id)
	return t, n == 1, err
}

// Delete removes the task and, through the foreign key cascade, its
// completion rows. Ledger entries keep their history with null references.
func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// MarkCompleted moves a pending task to completed. It reports false when the
// task is missing or was already completed.
func (s *TaskStore) MarkCompleted(id int64, at time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE tasks SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		model.TaskCompleted, at.UTC(), id, model.TaskPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark task completed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// --- Completion methods ---

const completionCols = `id, task_id, member_id, percentage, points, completed_at`

func scanCompletion(sc scanner) (*model.Completion, error) {
	var c model.Completion
	if err := sc.Scan(&c.ID, &c.TaskID, &c.MemberID, &c.Percentage, &c.Points, &c.CompletedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *TaskStore) CreateCompletion(taskID, memberID int64, percentage, points int, at time.Time) (*model.Completion, error) {
	result, err := s.db.Exec(
		`INSERT INTO completions (task_id, member_id, percentage, points, completed_at) VALUES (?, ?, ?, ?, ?)`,
		taskID, memberID, percentage, points, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+completionCols+` FROM completions WHERE id = ?`, id)
	return scanCompletion(row)
}

func (s *TaskStore) ListCompletionsByTask(taskID int64) ([]model.Completion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM completions WHERE task_id = ? ORDER BY id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
