package queue

import (
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/google/uuid"
)

// State is the lifecycle position of a job
type State string

// Job states
const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StateDelayed is reported by Counts for failed jobs with a retry pending
const StateDelayed State = "delayed"

// Progress checkpoints set by the worker
const (
	ProgressClaimed   = 10
	ProgressExecuting = 50
	ProgressDone      = 100
)

// Job is a durable unit of deferred work. Times are epoch milliseconds, zero when unset.
type Job struct {
	ID           string        `db:"id"`
	Name         task.Type     `db:"name"`
	Priority     task.Priority `db:"priority"`
	Payload      string        `db:"payload"`
	State        State         `db:"state"`
	Progress     int           `db:"progress"`
	Result       string        `db:"result"`
	FailedReason string        `db:"failed_reason"`
	AttemptsMade int           `db:"attempts_made"`
	MaxAttempts  int           `db:"max_attempts"`
	AvailableAt  int64         `db:"available_at"`
	UserID       string        `db:"user_id"`
	WorkerID     string        `db:"worker_id"`
	CreatedAt    int64         `db:"created_at"`
	ProcessedOn  int64         `db:"processed_on"`
	FinishedOn   int64         `db:"finished_on"`
	HeartbeatAt  int64         `db:"heartbeat_at"`
}

// Task rebuilds the task descriptor the job was enqueued with
func (j *Job) Task() task.Task {
	return task.Task{Type: j.Name, Priority: j.Priority, Data: json.RawMessage(j.Payload)}
}

// RetryPending reports whether a failed job is scheduled for another attempt
func (j *Job) RetryPending() bool {
	return j.State == StateFailed && j.AvailableAt > 0
}

// Terminal reports whether the job will not run again
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || (j.State == StateFailed && j.AvailableAt == 0)
}

// ResultJSON returns the stored result as raw JSON, or nil when absent
func (j *Job) ResultJSON() json.RawMessage {
	if j.Result == "" {
		return nil
	}
	return json.RawMessage(j.Result)
}

// Cursor is a keyset position in the job listing, newest first
type Cursor struct {
	CreatedAt int64
	ID        string
}

// Filter selects jobs for listing
type Filter struct {
	UserID   string
	Name     task.Type
	State    State
	PageSize int
	Cursor   *Cursor
}

// Schedule is a durable recurring job definition
type Schedule struct {
	Name      string        `db:"name"`
	Spec      string        `db:"spec"`
	TaskType  task.Type     `db:"task_type"`
	Priority  task.Priority `db:"priority"`
	Payload   string        `db:"payload"`
	NextRunAt int64         `db:"next_run_at"`
	LastRunAt int64         `db:"last_run_at"`
}

// Message is what the broker carries; the job row is the source of truth
type Message struct {
	JobID    string        `json:"job_id"`
	Type     task.Type     `json:"type,omitempty"`
	Priority task.Priority `json:"priority,omitempty"`
}

// ParseMessage decodes a broker body and checks that it names a job id
func ParseMessage(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return msg, fmt.Errorf("%w: job_id %q is not a uuid", ErrInvalidPayload, msg.JobID)
	}
	return msg, nil
}
