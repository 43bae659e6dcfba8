// Package storage implements the queue store on SQL. Queries use ?
// placeholders rebound per driver and avoid RETURNING and upserts, so the
// same statements run on PostgreSQL, MySQL and SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/agent-jobs/internal/queue"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, name, priority, payload, state, progress, result, failed_reason,
	attempts_made, max_attempts, available_at, user_id, worker_id,
	created_at, processed_on, finished_on, heartbeat_at
`

const scheduleColumns = `name, spec, task_type, priority, payload, next_run_at, last_run_at`

// Storage handles all queue database operations
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ queue.Store = (*Storage)(nil)

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Create inserts a new job
func (s *Storage) Create(ctx context.Context, job *queue.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `) VALUES (
			:id, :name, :priority, :payload, :state, :progress, :result, :failed_reason,
			:attempts_made, :max_attempts, :available_at, :user_id, :worker_id,
			:created_at, :processed_on, :finished_on, :heartbeat_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by its ID
func (s *Storage) Get(ctx context.Context, id string) (*queue.Job, error) {
	var job queue.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	err := s.db.GetContext(ctx, &job, s.db.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Claim attempts to claim a waiting job using optimistic locking
func (s *Storage) Claim(ctx context.Context, id, workerID string, progress int, now int64) (*queue.Job, error) {
	query := `
		UPDATE jobs
		SET state = ?,
		    worker_id = ?,
		    progress = ?,
		    attempts_made = attempts_made + 1,
		    available_at = 0,
		    processed_on = ?,
		    heartbeat_at = ?
		WHERE id = ?
		  AND state = ?
	`

	n, err := s.exec(ctx, query, queue.StateActive, workerID, progress, now, now, id, queue.StateWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		s.logger.Warn("Failed to claim job - already claimed or not waiting",
			slog.String("job_id", id),
			slog.String("worker_id", workerID),
		)
		return nil, queue.ErrJobAlreadyClaimed
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Job claimed successfully",
		slog.String("job_id", id),
		slog.String("worker_id", workerID),
		slog.String("task_type", string(job.Name)),
		slog.Int("attempt", job.AttemptsMade),
	)
	return job, nil
}

// Heartbeat updates heartbeat_at for an active job owned by workerID
func (s *Storage) Heartbeat(ctx context.Context, id, workerID string, now int64) error {
	query := `UPDATE jobs SET heartbeat_at = ? WHERE id = ? AND state = ? AND worker_id = ?`

	n, err := s.exec(ctx, query, now, id, queue.StateActive, workerID)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}
	if n == 0 {
		return queue.ErrJobLost
	}
	return nil
}

// UpdateProgress records a progress checkpoint for an active job
func (s *Storage) UpdateProgress(ctx context.Context, id, workerID string, progress int) error {
	query := `UPDATE jobs SET progress = ? WHERE id = ? AND state = ? AND worker_id = ?`

	n, err := s.exec(ctx, query, progress, id, queue.StateActive, workerID)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if n == 0 {
		return queue.ErrJobLost
	}
	return nil
}

// Complete stores the result and marks the job completed
func (s *Storage) Complete(ctx context.Context, id, workerID, result string, now int64) error {
	query := `
		UPDATE jobs
		SET state = ?,
		    progress = ?,
		    result = ?,
		    failed_reason = '',
		    available_at = 0,
		    finished_on = ?
		WHERE id = ? AND state = ? AND worker_id = ?
	`

	n, err := s.exec(ctx, query, queue.StateCompleted, queue.ProgressDone, result, now, id, queue.StateActive, workerID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n == 0 {
		return queue.ErrJobLost
	}
	return nil
}

// Fail marks the job failed. A non-zero retryAt keeps it eligible for another attempt.
func (s *Storage) Fail(ctx context.Context, id, workerID, reason string, retryAt, now int64) error {
	query := `
		UPDATE jobs
		SET state = ?,
		    result = '',
		    failed_reason = ?,
		    available_at = ?,
		    finished_on = ?
		WHERE id = ? AND state = ? AND worker_id = ?
	`

	n, err := s.exec(ctx, query, queue.StateFailed, reason, retryAt, now, id, queue.StateActive, workerID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if n == 0 {
		return queue.ErrJobLost
	}
	return nil
}

// Defer postpones delivery of a waiting job whose publish failed
func (s *Storage) Defer(ctx context.Context, id string, availableAt int64) error {
	query := `UPDATE jobs SET available_at = ? WHERE id = ? AND state = ?`

	if _, err := s.exec(ctx, query, availableAt, id, queue.StateWaiting); err != nil {
		return fmt.Errorf("failed to defer job: %w", err)
	}
	return nil
}

// DueRetries lists failed and deferred jobs whose available time has passed
func (s *Storage) DueRetries(ctx context.Context, now int64, limit int) ([]queue.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE available_at > 0
		  AND available_at <= ?
		  AND state IN (?, ?)
		ORDER BY available_at, id
		LIMIT ?
	`

	var jobs []queue.Job
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), now, queue.StateFailed, queue.StateWaiting, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}
	return jobs, nil
}

// Requeue moves a due job back to waiting if nobody else did first
func (s *Storage) Requeue(ctx context.Context, id string, expectedAvailableAt int64) (bool, error) {
	query := `
		UPDATE jobs
		SET state = ?,
		    progress = 0,
		    available_at = 0,
		    finished_on = 0
		WHERE id = ?
		  AND available_at = ?
		  AND state IN (?, ?)
	`

	n, err := s.exec(ctx, query, queue.StateWaiting, id, expectedAvailableAt, queue.StateFailed, queue.StateWaiting)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}
	return n == 1, nil
}

// Stalled lists active jobs whose last heartbeat is older than heartbeatBefore
func (s *Storage) Stalled(ctx context.Context, heartbeatBefore int64, limit int) ([]queue.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE state = ?
		  AND heartbeat_at < ?
		ORDER BY heartbeat_at, id
		LIMIT ?
	`

	var jobs []queue.Job
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), queue.StateActive, heartbeatBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled jobs: %w", err)
	}
	return jobs, nil
}

// Trim deletes finished jobs in state beyond the newest keep. Failed jobs
// with a retry pending are never trimmed.
func (s *Storage) Trim(ctx context.Context, state queue.State, keep int) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE state = ?
		  AND available_at = 0
		  AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM jobs
				WHERE state = ? AND available_at = 0
				ORDER BY finished_on DESC, id DESC
				LIMIT ?
			) kept
		  )
	`

	n, err := s.exec(ctx, query, state, state, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim %s jobs: %w", state, err)
	}
	return n, nil
}

// List returns jobs matching filter, newest first, fetching one extra row to
// tell whether another page exists
func (s *Storage) List(ctx context.Context, filter queue.Filter) ([]queue.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}

	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}

	switch filter.State {
	case "":
	case queue.StateDelayed:
		query += " AND state = ? AND available_at > 0"
		args = append(args, queue.StateFailed)
	default:
		query += " AND state = ?"
		args = append(args, filter.State)
	}

	if filter.Cursor != nil {
		query += " AND (created_at, id) < (?, ?)"
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []queue.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type stateCount struct {
	State    queue.State `db:"state"`
	Retrying int         `db:"retrying"`
	N        int         `db:"n"`
}

// Counts returns the number of jobs per state; failed jobs with a retry
// pending are counted as delayed
func (s *Storage) Counts(ctx context.Context) (map[queue.State]int, error) {
	query := `
		SELECT state,
		       CASE WHEN state = ? AND available_at > 0 THEN 1 ELSE 0 END AS retrying,
		       COUNT(*) AS n
		FROM jobs
		GROUP BY state, retrying
	`

	var rows []stateCount
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), queue.StateFailed); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[queue.State]int, len(rows))
	for _, r := range rows {
		if r.Retrying == 1 {
			counts[queue.StateDelayed] += r.N
			continue
		}
		counts[r.State] += r.N
	}
	return counts, nil
}

func (s *Storage) getSchedule(ctx context.Context, name string) (*queue.Schedule, error) {
	var sched queue.Schedule
	query := `SELECT ` + scheduleColumns + ` FROM job_schedules WHERE name = ?`

	err := s.db.GetContext(ctx, &sched, s.db.Rebind(query), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &sched, nil
}

// EnsureSchedule inserts sched, or updates the stored definition when it
// changed. An unchanged definition keeps its stored next run.
func (s *Storage) EnsureSchedule(ctx context.Context, sched *queue.Schedule) error {
	existing, err := s.getSchedule(ctx, sched.Name)
	if errors.Is(err, queue.ErrScheduleNotFound) {
		query := `INSERT INTO job_schedules (` + scheduleColumns + `)
			VALUES (:name, :spec, :task_type, :priority, :payload, :next_run_at, :last_run_at)`
		if _, insertErr := s.db.NamedExecContext(ctx, query, sched); insertErr == nil {
			return nil
		} else if existing, err = s.getSchedule(ctx, sched.Name); err != nil {
			// not a lost race with another process
			return fmt.Errorf("failed to create schedule: %w", insertErr)
		}
	} else if err != nil {
		return err
	}

	if existing.Spec == sched.Spec && existing.TaskType == sched.TaskType &&
		existing.Priority == sched.Priority && existing.Payload == sched.Payload {
		sched.NextRunAt = existing.NextRunAt
		sched.LastRunAt = existing.LastRunAt
		return nil
	}

	query := `
		UPDATE job_schedules
		SET spec = ?, task_type = ?, priority = ?, payload = ?, next_run_at = ?
		WHERE name = ?
	`
	if _, err := s.exec(ctx, query, sched.Spec, sched.TaskType, sched.Priority, sched.Payload, sched.NextRunAt, sched.Name); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Info("Schedule definition updated",
		slog.String("schedule", sched.Name),
		slog.String("spec", sched.Spec),
	)
	sched.LastRunAt = existing.LastRunAt
	return nil
}

// DueSchedules lists schedules whose next run is at or before now
func (s *Storage) DueSchedules(ctx context.Context, now int64) ([]queue.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM job_schedules WHERE next_run_at <= ? ORDER BY next_run_at, name`

	var scheds []queue.Schedule
	if err := s.db.SelectContext(ctx, &scheds, s.db.Rebind(query), now); err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	return scheds, nil
}

// AdvanceSchedule moves a schedule to its next run if it still expects expectedNext
func (s *Storage) AdvanceSchedule(ctx context.Context, name string, expectedNext, next, lastRun int64) (bool, error) {
	query := `UPDATE job_schedules SET next_run_at = ?, last_run_at = ? WHERE name = ? AND next_run_at = ?`

	n, err := s.exec(ctx, query, next, lastRun, name, expectedNext)
	if err != nil {
		return false, fmt.Errorf("failed to advance schedule: %w", err)
	}
	return n == 1, nil
}
