package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/agent-jobs/internal/api/auth"
	"github.com/cuongbtq/agent-jobs/internal/api/dto"
	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobStatus handles GET <domain>/job-status/:jobId. Jobs of another domain,
// unknown ids and purged jobs all answer 404.
func (h *QueueHandler) JobStatus(domain string) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		if _, err := uuid.Parse(jobID); err != nil {
			notFound(c, "job not found")
			return
		}

		job, err := h.queue.Status(c.Request.Context(), jobID)
		if err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			h.logger.Error("Failed to get job",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
			internalError(c, "failed to get job")
			return
		}
		if job == nil || job.Name.Domain() != domain {
			notFound(c, "job not found")
			return
		}

		p, _ := auth.FromContext(c)
		if !p.Owns(job.UserID) {
			auth.Forbid(c)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"job":     dto.NewJobStatus(job),
		})
	}
}

// ListJobs handles GET /api/queue/jobs
// Admins see every job and may filter by user; other callers see their own.
func (h *QueueHandler) ListJobs(c *gin.Context) {
	if !h.queue.Enabled() {
		queueUnavailable(c)
		return
	}

	var req dto.ListJobsRequest
	if !bindQuery(c, &req) {
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	var jobType task.Type
	if req.JobType != "" {
		t, err := task.ParseType(req.JobType)
		if err != nil {
			validationFailed(c, []FieldError{{Field: "job_type", Rule: "oneof"}})
			return
		}
		jobType = t
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		validationFailed(c, []FieldError{{Field: "cursor", Rule: "cursor"}})
		return
	}

	p, _ := auth.FromContext(c)
	userID := req.UserID
	if !p.IsAdmin() {
		userID = p.UserID
	}

	jobs, err := h.queue.List(c.Request.Context(), queue.Filter{
		UserID:   userID,
		Name:     jobType,
		State:    queue.State(req.State),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		internalError(c, "failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&queue.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Success:    true,
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// Stats handles GET /api/queue/stats (admin)
func (h *QueueHandler) Stats(c *gin.Context) {
	if !h.queue.Enabled() {
		queueUnavailable(c)
		return
	}

	counts, err := h.queue.Counts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.Any("error", err))
		internalError(c, "failed to count jobs")
		return
	}

	states := gin.H{}
	for _, s := range []queue.State{queue.StateWaiting, queue.StateActive, queue.StateCompleted, queue.StateFailed, queue.StateDelayed} {
		states[string(s)] = counts[s]
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"counts":  states,
	})
}
