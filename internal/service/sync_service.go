package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/normalize"
	"github.com/ndewijer/brokerage-sync/internal/notify"
	"github.com/ndewijer/brokerage-sync/internal/repository"
)

// Phase names a step of a sync run.
type Phase string

const (
	PhaseAccounts    Phase = "accounts"
	PhasePositions   Phase = "positions"
	PhaseSnapshots   Phase = "snapshots"
	PhaseActivities  Phase = "activities"
	PhaseFrequencies Phase = "frequencies"
)

// UnitResult is the outcome of one account within one phase. Count is the
// number of rows written, Derived the dividends derived by the activities
// phase and Skipped the records dropped for lacking an identifying key.
// Counts of a failed unit were rolled back.
type UnitResult struct {
	AccountID string
	Phase     Phase
	Count     int
	Derived   int
	Skipped   int
	Err       error
}

// OK reports whether the unit committed.
func (u UnitResult) OK() bool {
	return u.Err == nil
}

// RunContext carries the state of one run through its phases.
type RunContext struct {
	RunID    string
	Accounts []model.Account
	Counts   model.SyncCounts
	Units    []UnitResult
}

// Failures returns the units that did not commit.
func (rc *RunContext) Failures() []UnitResult {
	var failed []UnitResult
	for _, u := range rc.Units {
		if !u.OK() {
			failed = append(failed, u)
		}
	}
	return failed
}

// Skipped returns the number of records skipped across all units.
func (rc *RunContext) Skipped() int {
	n := 0
	for _, u := range rc.Units {
		n += u.Skipped
	}
	return n
}

// SyncOptions tune a run.
type SyncOptions struct {
	HistoryRange     string
	DefaultCurrency  string
	FetchConcurrency int
	// FetchTimeout bounds each per-account fetch; zero leaves it to the source.
	FetchTimeout time.Duration
}

// SyncService runs the reconciliation: it pulls every entity kind from a
// brokerage.Source and upserts it into the store, one phase at a time.
type SyncService struct {
	store     *repository.Store
	publisher notify.Publisher
	opts      SyncOptions
	log       zerolog.Logger
	now       func() time.Time
}

// NewSyncService creates a SyncService. A nil publisher disables run events.
func NewSyncService(store *repository.Store, publisher notify.Publisher, opts SyncOptions, log zerolog.Logger) *SyncService {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if opts.HistoryRange == "" {
		opts.HistoryRange = brokerage.DefaultHistoryRange
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = normalize.DefaultCurrency
	}
	if opts.FetchConcurrency < 1 {
		opts.FetchConcurrency = 1
	}

	return &SyncService{
		store:     store,
		publisher: publisher,
		opts:      opts,
		log:       log.With().Str("component", "sync").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute authenticates and then runs a sync. An authentication failure is
// returned before any run row exists.
func (s *SyncService) Execute(ctx context.Context, auth brokerage.Authenticator) (model.SyncRun, error) {
	src, err := auth.Authenticate(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrAuthentication) {
			err = fmt.Errorf("%w: %w", apperrors.ErrAuthentication, err)
		}
		return model.SyncRun{}, err
	}
	return s.Run(ctx, src)
}

// Run performs one sync against an authenticated source. The run row is
// created first and committed on its own; it is finished exactly once with
// success or error. Per-account failures are logged and do not change the
// terminal status. The returned error is the escalated run error, if any.
func (s *SyncService) Run(ctx context.Context, src brokerage.Source) (model.SyncRun, error) {
	run, err := s.store.Runs.Create(ctx, s.now())
	if err != nil {
		return model.SyncRun{}, err
	}

	log := s.log.With().Str("run_id", run.ID).Logger()
	log.Info().Msg("sync run started")

	rc := &RunContext{RunID: run.ID}
	runErr := s.runPhases(ctx, src, rc, log)

	completedAt := s.now()
	run.Counts = rc.Counts
	run.CompletedAt = &completedAt
	if runErr != nil {
		run.Status = model.SyncError
		msg := model.TruncateRunError(runErr.Error())
		run.Error = &msg
	} else {
		run.Status = model.SyncSuccess
	}

	// The outcome is recorded even when the caller's context was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if err := s.store.Runs.Finish(finishCtx, run); err != nil {
		log.Error().Err(err).Msg("failed to record run outcome")
		if runErr == nil {
			runErr = fmt.Errorf("failed to record run outcome: %w", err)
		}
	}

	if err := s.publisher.Publish(finishCtx, run); err != nil {
		log.Warn().Err(err).Msg("failed to publish run event")
	}

	level := zerolog.InfoLevel
	if runErr != nil {
		level = zerolog.ErrorLevel
	}
	log.WithLevel(level).Err(runErr).
		Str("status", string(run.Status)).
		Int("accounts", run.Counts.Accounts).
		Int("positions", run.Counts.Positions).
		Int("snapshots", run.Counts.Snapshots).
		Int("activities", run.Counts.Activities).
		Int("dividends", run.Counts.Dividends).
		Int("skipped", rc.Skipped()).
		Int("failed_units", len(rc.Failures())).
		Msg("sync run finished")

	return run, runErr
}

func (s *SyncService) runPhases(ctx context.Context, src brokerage.Source, rc *RunContext, log zerolog.Logger) error {
	if err := s.syncAccounts(ctx, src, rc, log); err != nil {
		return err
	}

	s.record(rc, PhasePositions, s.syncPerAccount(ctx, rc, PhasePositions, log,
		func(ctx context.Context, acc model.Account) ([]brokerage.RawRecord, error) {
			return src.ListPositions(ctx, acc.ID)
		},
		s.writePositions,
	))

	s.record(rc, PhaseSnapshots, s.syncPerAccount(ctx, rc, PhaseSnapshots, log,
		func(ctx context.Context, acc model.Account) ([]brokerage.RawRecord, error) {
			return src.ListHistoricalValuations(ctx, acc.ID, s.opts.HistoryRange)
		},
		s.writeSnapshots,
	))

	s.record(rc, PhaseActivities, s.syncPerAccount(ctx, rc, PhaseActivities, log,
		func(ctx context.Context, acc model.Account) ([]brokerage.RawRecord, error) {
			return src.ListActivities(ctx, acc.ID)
		},
		s.writeActivities,
	))

	if err := s.inferFrequencies(ctx, log); err != nil {
		return fmt.Errorf("frequency inference: %w", err)
	}
	return nil
}

func (s *SyncService) defaults() normalize.Defaults {
	return normalize.Defaults{Currency: s.opts.DefaultCurrency, Now: s.now}
}

// syncAccounts lists and upserts every account in one write unit. Any
// failure here escalates, and a listing failure writes nothing.
func (s *SyncService) syncAccounts(ctx context.Context, src brokerage.Source, rc *RunContext, log zerolog.Logger) error {
	records, err := src.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	unit, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer unit.Rollback()

	result := UnitResult{Phase: PhaseAccounts}
	accounts := make([]model.Account, 0, len(records))
	for _, raw := range records {
		acc, err := normalize.Account(raw, s.defaults())
		if errors.Is(err, normalize.ErrSkip) {
			result.Skipped++
			continue
		}
		if err := unit.Accounts.Upsert(ctx, acc); err != nil {
			return err
		}
		accounts = append(accounts, acc)
	}

	if err := unit.Commit(); err != nil {
		return err
	}

	result.Count = len(accounts)
	rc.Accounts = accounts
	rc.Counts.Accounts = len(accounts)
	rc.Units = append(rc.Units, result)

	log.Info().Int("accounts", len(accounts)).Int("skipped", result.Skipped).Msg("accounts synced")
	return nil
}

type fetchFunc func(ctx context.Context, acc model.Account) ([]brokerage.RawRecord, error)

type writeFunc func(ctx context.Context, unit *repository.WriteUnit, acc model.Account, records []brokerage.RawRecord, result *UnitResult) error

type fetched struct {
	records []brokerage.RawRecord
	err     error
}

// syncPerAccount fetches every account's records, concurrently up to the
// configured limit, then writes each account in its own write unit in
// account order. A failed fetch or write affects only that account.
func (s *SyncService) syncPerAccount(ctx context.Context, rc *RunContext, phase Phase, log zerolog.Logger, fetch fetchFunc, write writeFunc) []UnitResult {
	results := make([]fetched, len(rc.Accounts))

	var g errgroup.Group
	g.SetLimit(s.opts.FetchConcurrency)
	for i, acc := range rc.Accounts {
		g.Go(func() error {
			results[i] = s.fetchAccount(ctx, acc, fetch)
			return nil
		})
	}
	_ = g.Wait()

	units := make([]UnitResult, 0, len(rc.Accounts))
	for i, acc := range rc.Accounts {
		unit := UnitResult{AccountID: acc.ID, Phase: phase}
		if results[i].err != nil {
			unit.Err = fmt.Errorf("fetch: %w", results[i].err)
		} else {
			unit = s.writeAccount(ctx, acc, phase, results[i].records, write)
		}

		accLog := log.With().Str("phase", string(phase)).Str("account_id", acc.ID).Logger()
		if !unit.OK() {
			accLog.Warn().Err(unit.Err).Msg("account skipped for this phase")
		} else {
			accLog.Debug().Int("written", unit.Count).Int("skipped", unit.Skipped).Msg("account synced")
		}
		units = append(units, unit)
	}
	return units
}

func (s *SyncService) fetchAccount(ctx context.Context, acc model.Account, fetch fetchFunc) (out fetched) {
	defer func() {
		if r := recover(); r != nil {
			out = fetched{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	records, err := fetch(ctx, acc)
	return fetched{records: records, err: err}
}

func (s *SyncService) writeAccount(ctx context.Context, acc model.Account, phase Phase, records []brokerage.RawRecord, write writeFunc) (result UnitResult) {
	result = UnitResult{AccountID: acc.ID, Phase: phase}

	unit, err := s.store.Begin(ctx)
	if err != nil {
		result.Err = err
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			_ = unit.Rollback()
			result = UnitResult{AccountID: acc.ID, Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := write(ctx, unit, acc, records, &result); err != nil {
		_ = unit.Rollback()
		return UnitResult{AccountID: acc.ID, Phase: phase, Err: err}
	}
	if err := unit.Commit(); err != nil {
		_ = unit.Rollback()
		return UnitResult{AccountID: acc.ID, Phase: phase, Err: err}
	}
	return result
}

func (s *SyncService) record(rc *RunContext, phase Phase, units []UnitResult) {
	written, derived, failed := 0, 0, 0
	for _, u := range units {
		if !u.OK() {
			failed++
			continue
		}
		written += u.Count
		derived += u.Derived
	}

	switch phase {
	case PhasePositions:
		rc.Counts.Positions += written
	case PhaseSnapshots:
		rc.Counts.Snapshots += written
	case PhaseActivities:
		rc.Counts.Activities += written
		rc.Counts.Dividends += derived
	}
	rc.Units = append(rc.Units, units...)

	s.log.Info().Str("run_id", rc.RunID).Str("phase", string(phase)).
		Int("written", written).Int("failed_accounts", failed).Msg("phase complete")
}

func (s *SyncService) writePositions(ctx context.Context, unit *repository.WriteUnit, acc model.Account, records []brokerage.RawRecord, result *UnitResult) error {
	for _, raw := range records {
		p := normalize.Position(raw, acc, s.defaults())
		if err := unit.Positions.Upsert(ctx, &p); err != nil {
			return err
		}
		result.Count++
	}
	return nil
}

func (s *SyncService) writeSnapshots(ctx context.Context, unit *repository.WriteUnit, acc model.Account, records []brokerage.RawRecord, result *UnitResult) error {
	for _, raw := range records {
		snap, err := normalize.Snapshot(raw, acc.ID)
		if errors.Is(err, normalize.ErrSkip) {
			result.Skipped++
			continue
		}
		if err := unit.Snapshots.Upsert(ctx, &snap); err != nil {
			return err
		}
		result.Count++
	}
	return nil
}

func (s *SyncService) writeActivities(ctx context.Context, unit *repository.WriteUnit, acc model.Account, records []brokerage.RawRecord, result *UnitResult) error {
	for _, raw := range records {
		act, err := normalize.Activity(raw, acc, s.defaults())
		if errors.Is(err, normalize.ErrSkip) {
			result.Skipped++
			continue
		}
		if err := unit.Activities.Upsert(ctx, act); err != nil {
			return err
		}
		result.Count++

		if div, ok := normalize.DividendFromActivity(act); ok {
			if err := unit.Dividends.Upsert(ctx, &div); err != nil {
				return err
			}
			result.Derived++
		}
	}
	return nil
}

// inferFrequencies classifies every dividend series and writes one update
// per (account, symbol) group, all in one write unit.
func (s *SyncService) inferFrequencies(ctx context.Context, log zerolog.Logger) error {
	unit, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer unit.Rollback()

	dividends, err := unit.Dividends.ListAll(ctx)
	if err != nil {
		return err
	}

	frequencies := InferFrequencies(dividends)
	classified := 0
	for _, group := range sortedGroups(frequencies) {
		f := frequencies[group]
		if _, err := unit.Dividends.SetGroupFrequency(ctx, group, f); err != nil {
			return err
		}
		if f != nil {
			classified++
		}
	}

	if err := unit.Commit(); err != nil {
		return err
	}

	log.Info().Int("groups", len(frequencies)).Int("classified", classified).Msg("dividend frequencies updated")
	return nil
}

// LatestRun returns the most recently started run.
func (s *SyncService) LatestRun(ctx context.Context) (model.SyncRun, error) {
	return s.store.Runs.Latest(ctx)
}

// RunHistory returns up to limit runs, newest first.
func (s *SyncService) RunHistory(ctx context.Context, limit int) ([]model.SyncRun, error) {
	return s.store.Runs.History(ctx, limit)
}

// GetRun returns one run by id.
func (s *SyncService) GetRun(ctx context.Context, id string) (model.SyncRun, error) {
	return s.store.Runs.Get(ctx, id)
}
