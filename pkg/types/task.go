package types

import "time"

// TaskStatus is the lifecycle state of an indexing run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// IndexingTask is the persisted bookkeeping row for one index run.
type IndexingTask struct {
	ID             int64
	Paths          []string
	EmbeddingModel string
	Status         TaskStatus
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	Total          int64
	Processed      int64
	Success        int64
	Failed         int64
	Skipped        int64
	Remark         string
}

// ProgressKind tags a ProgressEvent.
type ProgressKind string

const (
	ProgressStart  ProgressKind = "start"
	ProgressScan   ProgressKind = "scan"
	ProgressStop   ProgressKind = "stop"
	ProgressEmbed  ProgressKind = "embed"
	ProgressFinish ProgressKind = "finish"
)

// ProgressEvent is a fire-and-forget notification about an indexing run.
type ProgressEvent struct {
	Kind    ProgressKind `json:"kind"`
	TaskID  int64        `json:"task_id"`
	Message string       `json:"msg"`
}
