// Package scheduler runs the periodic competition status sweep.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/services"
)

// DefaultSweepCron runs the sweep at the start of every minute.
const DefaultSweepCron = "* * * * *"

const sweepJobName = "status-sweep"

var (
	ErrEmptyJobName  = errors.New("job name is required")
	ErrEmptyCronExpr = errors.New("cron expression is required")
)

// Sweeper applies schedule-driven competition status changes.
type Sweeper interface {
	SweepStatuses(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

// Service wraps a gocron scheduler.
type Service struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	stopOnce  sync.Once
	stopErr   error
}

func New(logger *slog.Logger) (*Service, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData interface{}) {
					logger.Error("Scheduler job panicked",
						slog.String("job_id", jobID.String()),
						slog.String("job_name", jobName),
						slog.Any("panic", recoverData))
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("Scheduler initialized")
	return &Service{scheduler: sched, logger: logger}, nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	s.logger.Info("Scheduler starting")
	s.scheduler.Start()
}

// Stop shuts down the scheduler and waits for running jobs. Safe to call twice.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// AddJob registers a cron-based job. With immediate set the first run happens on Start.
func (s *Service) AddJob(name, cronExpr string, immediate bool, task func()) (gocron.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if strings.TrimSpace(cronExpr) == "" {
		return nil, ErrEmptyCronExpr
	}
	jobLogger := s.logger.With(slog.String("job_name", name), slog.String("cron", cronExpr))

	wrapped := func() {
		jobLogger.Debug("Scheduler job started")
		task()
		jobLogger.Debug("Scheduler job completed")
	}

	opts := []gocron.JobOption{gocron.WithName(name)}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrapped),
		opts...,
	)
	if err != nil {
		jobLogger.Error("Failed to register scheduler job", slog.Any("error", err))
		return nil, err
	}
	jobLogger.Info("Scheduler job registered")
	return job, nil
}

// AddSweep registers the status sweep. It runs once at startup and then on cronExpr.
// Runs use ctx as is. A slow store delays the next run rather than aborting this one;
// cancelling ctx stops pending runs.
func (s *Service) AddSweep(ctx context.Context, cronExpr string, sweeper Sweeper) (gocron.Job, error) {
	if cronExpr == "" {
		cronExpr = DefaultSweepCron
	}
	return s.AddJob(sweepJobName, cronExpr, true, func() {
		runSweep(ctx, sweeper, s.logger)
	})
}

func runSweep(ctx context.Context, sweeper Sweeper, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	result, err := sweeper.SweepStatuses(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("Status sweep failed", slog.Any("error", err))
		return
	}
	if len(result.Applied) == 0 && len(result.Failed) == 0 {
		return
	}
	logger.Info("Status sweep finished",
		slog.Int("applied", len(result.Applied)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failed)))
	for _, f := range result.Failed {
		logger.Warn("Status transition not applied",
			slog.String("competition_id", f.Transition.CompetitionID.String()),
			slog.String("from", string(f.Transition.OldStatus)),
			slog.String("to", string(f.Transition.NewStatus)),
			slog.String("error", f.Error))
	}
}
