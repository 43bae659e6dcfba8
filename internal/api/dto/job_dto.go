package dto

import (
	"encoding/json"

	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
)

type ListJobsRequest struct {
	UserID   string `form:"user_id" binding:"max=64"`
	JobType  string `form:"job_type"`
	State    string `form:"state" binding:"omitempty,oneof=waiting active completed failed delayed"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Success    bool     `json:"success"`
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobStatus is what job-status polling returns
type JobStatus struct {
	ID           string          `json:"id"`
	Name         task.Type       `json:"name"`
	State        queue.State     `json:"state"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error,omitempty"`
	AttemptsMade int             `json:"attemptsMade"`
	ProcessedOn  *int64          `json:"processedOn"`
	FinishedOn   *int64          `json:"finishedOn"`
}

// JobDTO is a job as listed by the queue admin routes
type JobDTO struct {
	JobStatus
	Priority  task.Priority `json:"priority"`
	UserID    string        `json:"userId"`
	CreatedAt int64         `json:"createdAt"`
}

// NewJobStatus converts a stored job. A failed job waiting for its next
// attempt reads as delayed.
func NewJobStatus(job *queue.Job) JobStatus {
	state := job.State
	if job.RetryPending() {
		state = queue.StateDelayed
	}

	return JobStatus{
		ID:           job.ID,
		Name:         job.Name,
		State:        state,
		Progress:     job.Progress,
		Result:       job.ResultJSON(),
		Error:        job.FailedReason,
		AttemptsMade: job.AttemptsMade,
		ProcessedOn:  optionalMillis(job.ProcessedOn),
		FinishedOn:   optionalMillis(job.FinishedOn),
	}
}

func NewJobDTO(job *queue.Job) JobDTO {
	return JobDTO{
		JobStatus: NewJobStatus(job),
		Priority:  job.Priority,
		UserID:    job.UserID,
		CreatedAt: job.CreatedAt,
	}
}

func optionalMillis(ms int64) *int64 {
	if ms == 0 {
		return nil
	}
	return &ms
}
