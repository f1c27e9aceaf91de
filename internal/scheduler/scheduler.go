package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// DefaultSchedule runs a sync every day at 06:00.
const DefaultSchedule = "0 6 * * *"

// Runner starts a sync and waits for it.
type Runner interface {
	RunNow(ctx context.Context) (model.SyncRun, error)
}

// Scheduler triggers syncs on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	job     cron.Job
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Scheduler running runner on spec, a standard five-field cron
// expression or a descriptor such as @hourly. timeout bounds each run; zero
// means no bound. Overlapping ticks are skipped.
func New(spec string, runner Runner, timeout time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	log = log.With().Str("component", "scheduler").Logger()
	logger := cronLogger{log: log}

	s := &Scheduler{timeout: timeout, log: log}
	s.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.run(runner) }))
	s.cron = cron.New(cron.WithLogger(logger))

	entry, err := s.cron.AddJob(spec, s.job)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.entry = entry
	return s, nil
}

func (s *Scheduler) run(runner Runner) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	run, err := runner.RunNow(ctx)
	switch {
	case errors.Is(err, apperrors.ErrRunInProgress):
		s.log.Info().Msg("scheduled sync skipped, a run is already in progress")
	case err != nil:
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("scheduled sync failed")
	default:
		s.log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("scheduled sync finished")
	}
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Time("next", s.Next()).Msg("scheduler started")
}

// Next returns the next scheduled time. It is zero until Start is called.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop stops the schedule and waits for a running job, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
