package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// Coordinator ensures at most one run at a time per process, whether it was
// started by the scheduler, the API or the CLI. It does not guard against
// other processes; the upserts are safe for that.
type Coordinator struct {
	sync        *SyncService
	auth        brokerage.Authenticator
	enrichment  *EnrichmentService
	enrichAfter bool
	running     atomic.Bool
	wg          sync.WaitGroup
	log         zerolog.Logger

	// life is cancelled by Shutdown; every run is bound to it.
	life     context.Context
	stopLife context.CancelFunc
	mu       sync.Mutex
	closed   bool
}

// errShutDown is returned for runs requested after Shutdown.
var errShutDown = errors.New("coordinator is shut down")

// cancelGrace is how long Shutdown waits for cancelled runs to record their
// outcome.
const cancelGrace = 5 * time.Second

// NewCoordinator creates a Coordinator. enrichment may be nil.
func NewCoordinator(syncService *SyncService, auth brokerage.Authenticator, enrichment *EnrichmentService, enrichAfter bool, log zerolog.Logger) *Coordinator {
	life, stop := context.WithCancel(context.Background())
	return &Coordinator{
		life:        life,
		stopLife:    stop,
		sync:        syncService,
		auth:        auth,
		enrichment:  enrichment,
		enrichAfter: enrichAfter && enrichment != nil,
		log:         log.With().Str("component", "coordinator").Logger(),
	}
}

// Running reports whether a run started by this process is in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// RunNow runs a sync and waits for it. It returns ErrRunInProgress when one
// is already running.
func (c *Coordinator) RunNow(ctx context.Context) (model.SyncRun, error) {
	if !c.running.CompareAndSwap(false, true) {
		return model.SyncRun{}, apperrors.ErrRunInProgress
	}
	defer c.running.Store(false)

	if !c.track() {
		return model.SyncRun{}, errShutDown
	}
	defer c.wg.Done()
	return c.execute(ctx)
}

// Start begins a sync in the background and returns immediately. The run is
// detached from ctx cancellation so an HTTP request ending does not abort it;
// only Shutdown cancels it.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return apperrors.ErrRunInProgress
	}
	if !c.track() {
		c.running.Store(false)
		return errShutDown
	}

	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)

		if _, err := c.execute(context.WithoutCancel(ctx)); err != nil {
			c.log.Error().Err(err).Msg("background sync failed")
		}
	}()
	return nil
}

// Wait blocks until background runs have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// track registers a run with the WaitGroup unless Shutdown has begun.
func (c *Coordinator) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// Shutdown refuses new runs and waits for in-flight ones until ctx ends. It
// then cancels them, gives them cancelGrace to record their outcome, and
// returns ctx's error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.stopLife()
		return nil
	case <-ctx.Done():
	}

	c.log.Warn().Msg("cancelling in-flight sync")
	c.stopLife()
	select {
	case <-done:
	case <-time.After(cancelGrace):
		c.log.Error().Msg("sync did not stop after cancellation")
	}
	return ctx.Err()
}

func (c *Coordinator) execute(ctx context.Context) (model.SyncRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	run, err := c.sync.Execute(ctx, c.auth)
	if err != nil {
		return run, err
	}

	if c.enrichAfter {
		if _, err := c.enrichment.EnrichSecurities(ctx); err != nil {
			c.log.Warn().Err(err).Msg("enrichment after sync failed")
		}
	}
	return run, nil
}
