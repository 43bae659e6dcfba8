package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/task"
	"github.com/robfig/cron/v3"
)

// Maintenance schedule defaults
const (
	MaintenanceSchedule = "maintenance-sweep"
	MaintenanceCron     = "0 3 * * *"
)

// SystemUser owns jobs created by schedules
const SystemUser = "system"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five-field cron expression, evaluated in UTC
func ParseCron(spec string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return sched, nil
}

// ScheduleRequest describes a recurring job
type ScheduleRequest struct {
	Name     string
	Spec     string
	Type     task.Type
	Priority task.Priority
	Payload  any
}

// RegisterSchedule creates or updates a recurring job definition. Registering
// the same definition again is a no-op, so every process may register on start.
func (q *Queue) RegisterSchedule(ctx context.Context, req ScheduleRequest) error {
	if q == nil {
		return nil
	}

	if req.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: %s", task.ErrUnknownType, req.Type)
	}
	priority, err := task.ParsePriority(string(req.Priority))
	if err != nil {
		return err
	}
	sched, err := ParseCron(req.Spec)
	if err != nil {
		return err
	}
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return err
	}

	s := &Schedule{
		Name:      req.Name,
		Spec:      req.Spec,
		TaskType:  req.Type,
		Priority:  priority,
		Payload:   payload,
		NextRunAt: sched.Next(q.now().UTC()).UnixMilli(),
	}
	if err := q.store.EnsureSchedule(ctx, s); err != nil {
		return fmt.Errorf("failed to register schedule %s: %w", req.Name, err)
	}

	q.logger.Info("Schedule registered",
		slog.String("schedule", req.Name),
		slog.String("spec", req.Spec),
		slog.Time("next_run_at", time.UnixMilli(s.NextRunAt).UTC()),
	)
	return nil
}

// RegisterMaintenance registers the daily housekeeping sweep
func (q *Queue) RegisterMaintenance(ctx context.Context) error {
	if q == nil {
		return nil
	}
	return q.RegisterSchedule(ctx, ScheduleRequest{
		Name:     MaintenanceSchedule,
		Spec:     q.config.MaintenanceCron,
		Type:     task.TypeMaintenanceSweep,
		Priority: task.PriorityLow,
	})
}

// FireDueSchedules enqueues one job for every schedule whose next run has
// passed. Advancing the schedule is compare-and-set, so with several
// schedulers running exactly one enqueues each occurrence.
func (q *Queue) FireDueSchedules(ctx context.Context) (int, error) {
	if q == nil {
		return 0, nil
	}

	now := q.now().UTC()
	due, err := q.store.DueSchedules(ctx, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to load due schedules: %w", err)
	}

	fired := 0
	for _, s := range due {
		sched, err := ParseCron(s.Spec)
		if err != nil {
			q.logger.Error("Skipping schedule with invalid spec",
				slog.String("schedule", s.Name),
				slog.Any("error", err),
			)
			continue
		}

		next := sched.Next(now).UnixMilli()
		won, err := q.store.AdvanceSchedule(ctx, s.Name, s.NextRunAt, next, now.UnixMilli())
		if err != nil {
			return fired, fmt.Errorf("failed to advance schedule %s: %w", s.Name, err)
		}
		if !won {
			continue
		}

		jobID, err := q.Enqueue(ctx, EnqueueRequest{
			Type:     s.TaskType,
			Priority: s.Priority,
			Payload:  []byte(s.Payload),
			UserID:   SystemUser,
		})
		if err != nil {
			q.logger.Error("Failed to enqueue scheduled job",
				slog.String("schedule", s.Name),
				slog.Any("error", err),
			)
			continue
		}

		fired++
		q.logger.Info("Schedule fired",
			slog.String("schedule", s.Name),
			slog.String("job_id", jobID),
			slog.Time("next_run_at", time.UnixMilli(next).UTC()),
		)
	}
	return fired, nil
}
