package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `id, owner, title, description, priority, due_date, completed, created_at, updated_at`

// CreateTask inserts a new pending task for t.Owner. ID and timestamps are
// assigned here; any values set by the caller are ignored.
func (s *Store) CreateTask(ctx context.Context, t Task) (Task, error) {
	if t.Owner == "" {
		return Task{}, errors.New("owner is required")
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	now := s.now()
	t.ID = uuid.NewString()
	t.Completed = false
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.Owner, t.Title, t.Description, string(t.Priority), nullTime(t.DueDate),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return Task{}, fmt.Errorf("inserting task: %w", err)
	}
	return t, nil
}

// GetTask returns the task with id if it belongs to owner.
func (s *Store) GetTask(ctx context.Context, id, owner string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, owner)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns owner's tasks newest-created first.
func (s *Store) ListTasks(ctx context.Context, owner string, f TaskFilter) ([]Task, error) {
	where, args := taskWhere(owner, f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE `+where+`
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTasks returns how many of owner's tasks match f, ignoring paging.
func (s *Store) CountTasks(ctx context.Context, owner string, f TaskFilter) (int, error) {
	where, args := taskWhere(owner, f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return n, nil
}

func taskWhere(owner string, f TaskFilter) (string, []any) {
	clauses := []string{"owner = ?"}
	args := []any{owner}
	switch f.Status {
	case StatusPending:
		clauses = append(clauses, "completed = 0")
	case StatusCompleted:
		clauses = append(clauses, "completed = 1")
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(f.Priority))
	}
	return strings.Join(clauses, " AND "), args
}

// UpdateTask applies the non-nil fields of p and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id, owner string, p TaskPatch) (Task, error) {
	if p.Empty() {
		return Task{}, errors.New("empty task patch")
	}
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(s.now())}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, formatTime(*p.DueDate))
	}
	args = append(args, id, owner)

	return s.mutateTask(ctx, id, owner, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner = ?`, args...)
}

// CompleteTask marks the task completed. Completing an already completed task
// succeeds without touching updated_at.
func (s *Store) CompleteTask(ctx context.Context, id, owner string) (Task, error) {
	return s.mutateTask(ctx, id, owner,
		`UPDATE tasks SET completed = 1, updated_at = ? WHERE id = ? AND owner = ? AND completed = 0`,
		formatTime(s.now()), id, owner)
}

func (s *Store) mutateTask(ctx context.Context, id, owner, query string, args ...any) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("beginning task update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Task{}, fmt.Errorf("updating task: %w", err)
	}
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("committing task update: %w", err)
	}
	return t, nil
}

// DeleteTask permanently removes the task and returns its last state.
func (s *Store) DeleteTask(ctx context.Context, id, owner string) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("beginning task delete: %w", err)
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner = ?`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner = ?`, id, owner); err != nil {
		return Task{}, fmt.Errorf("deleting task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("committing task delete: %w", err)
	}
	return t, nil
}

func scanTask(row scanner) (Task, error) {
	var t Task
	var priority, createdAt, updatedAt string
	var due sql.NullString
	var completed int
	if err := row.Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &priority, &due, &completed, &createdAt, &updatedAt); err != nil {
		return Task{}, err
	}
	t.Priority = Priority(priority)
	t.Completed = completed != 0

	var err error
	if due.Valid && due.String != "" {
		d, err := parseTime(due.String)
		if err != nil {
			return Task{}, fmt.Errorf("parsing due_date: %w", err)
		}
		t.DueDate = &d
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Task{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
