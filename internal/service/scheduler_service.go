package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/panics"

	"task-manager/internal/clog"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// SchedulerService wraps cron-based jobs. A job is skipped while its previous
// run is still active.
type SchedulerService struct {
	cron    *cron.Cron
	timeout time.Duration
	base    context.Context
}

func NewSchedulerService(loc *time.Location, timeout time.Duration) *SchedulerService {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		base:    context.Background(),
	}
}

// Schedule registers a job with a 6-field cron spec (seconds first).
func (s *SchedulerService) Schedule(name, spec string, job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() { _ = s.Run(s.base, name, job) })
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	return id, nil
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.Schedule(name, fmt.Sprintf("@every %ds", seconds), job)
}

// Start runs the scheduler in the background; jobs inherit ctx.
func (s *SchedulerService) Start(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run executes job once with a run id, the configured timeout and panic
// recovery.
func (s *SchedulerService) Run(parent context.Context, name string, job Job) error {
	ctx := clog.ContextWithSlog(parent)
	clog.AddAttributes(ctx, map[string]any{
		"job":    name,
		"run_id": ulid.Make().String(),
	})
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() { err = job(ctx) })
	if recovered := catcher.Recovered(); recovered != nil {
		err = recovered.AsError()
	}

	if err != nil {
		slog.ErrorContext(ctx, "job failed", "duration", time.Since(start), "error", err)
		return err
	}
	slog.InfoContext(ctx, "job finished", "duration", time.Since(start))
	return nil
}
