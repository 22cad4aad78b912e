package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
	// TaskVarianceDigest publishes the stock ledger digest gauges.
	TaskVarianceDigest = "stock:variance-digest"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// VarianceDigestPayload optionally narrows the digest to one block.
type VarianceDigestPayload struct {
	Block string `json:"block,omitempty"`
}

// NewVarianceDigestTask constructs the digest task.
func NewVarianceDigestTask(block string) (*asynq.Task, error) {
	body, err := json.Marshal(VarianceDigestPayload{Block: block})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVarianceDigest, body, asynq.Queue(QueueDefault)), nil
}

// TaskNames lists the task types that can be triggered by hand.
func TaskNames() []string {
	return []string{TaskIdempotencyCleanup, TaskVarianceDigest}
}

// NewTaskByName builds a task with default payload for manual triggering.
func NewTaskByName(name string, retention time.Duration) (*asynq.Task, error) {
	switch name {
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(retention)
	case TaskVarianceDigest:
		return NewVarianceDigestTask("")
	}
	return nil, fmt.Errorf("jobs: unknown task %q", name)
}
