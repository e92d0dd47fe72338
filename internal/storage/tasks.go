package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/filesift/pkg/types"
)

// Task operations

const taskColumns = `id, paths, embedding_model, status, start_time, end_time, duration_ms,
	total_cnt, processed_cnt, success_cnt, failed_cnt, skipped_cnt, remark`

// CreateTask inserts a task row and sets task.ID
func (s *SQLiteStorage) CreateTask(ctx context.Context, task *types.IndexingTask) error {
	paths, err := json.Marshal(task.Paths)
	if err != nil {
		return fmt.Errorf("failed to encode task paths: %w", err)
	}
	if task.Status == "" {
		task.Status = types.TaskPending
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO indexing_tasks (paths, embedding_model, status, start_time, end_time, duration_ms,
			total_cnt, processed_cnt, success_cnt, failed_cnt, skipped_cnt, remark)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(paths), task.EmbeddingModel, string(task.Status),
		toMillis(task.StartTime), toMillis(task.EndTime), task.Duration.Milliseconds(),
		task.Total, task.Processed, task.Success, task.Failed, task.Skipped, task.Remark)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.ID, err = result.LastInsertId()
	return err
}

// UpdateTask overwrites the mutable fields of a task
func (s *SQLiteStorage) UpdateTask(ctx context.Context, task *types.IndexingTask) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE indexing_tasks SET status = ?, start_time = ?, end_time = ?, duration_ms = ?,
			total_cnt = ?, processed_cnt = ?, success_cnt = ?, failed_cnt = ?, skipped_cnt = ?, remark = ?
		WHERE id = ?`,
		string(task.Status), toMillis(task.StartTime), toMillis(task.EndTime), task.Duration.Milliseconds(),
		task.Total, task.Processed, task.Success, task.Failed, task.Skipped, task.Remark, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectRow(result)
}

// GetTask retrieves a task by ID
func (s *SQLiteStorage) GetTask(ctx context.Context, taskID int64) (*types.IndexingTask, error) {
	return scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM indexing_tasks WHERE id = ?", taskID))
}

// LatestTask returns the most recently created task
func (s *SQLiteStorage) LatestTask(ctx context.Context) (*types.IndexingTask, error) {
	return scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM indexing_tasks ORDER BY id DESC LIMIT 1"))
}

func scanTask(row *sql.Row) (*types.IndexingTask, error) {
	var t types.IndexingTask
	var paths, status string
	var start, end, durationMS int64
	err := row.Scan(&t.ID, &paths, &t.EmbeddingModel, &status, &start, &end, &durationMS,
		&t.Total, &t.Processed, &t.Success, &t.Failed, &t.Skipped, &t.Remark)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	if paths != "" {
		if err := json.Unmarshal([]byte(paths), &t.Paths); err != nil {
			return nil, fmt.Errorf("failed to decode task paths: %w", err)
		}
	}
	t.Status = types.TaskStatus(status)
	t.StartTime = fromMillis(start)
	t.EndTime = fromMillis(end)
	t.Duration = time.Duration(durationMS) * time.Millisecond
	return &t, nil
}
