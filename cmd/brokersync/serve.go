package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/google/subcommands"

	"github.com/ndewijer/brokerage-sync/internal/api"
	"github.com/ndewijer/brokerage-sync/internal/scheduler"
	"github.com/ndewijer/brokerage-sync/internal/service"
)

const shutdownTimeout = 30 * time.Second

type serveCmd struct {
	noSchedule bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the sync API and run scheduled syncs" }
func (*serveCmd) Usage() string {
	return `brokersync serve [-no-schedule]

  Starts the HTTP API on SERVER_HOST:SERVER_PORT and runs a sync on
  SYNC_SCHEDULE. POST /api/sync triggers a run on demand.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noSchedule, "no-schedule", false, "Disable the cron schedule")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := cfg.ValidateSync(); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	client := a.brokerClient()
	auth, err := a.authenticator(client)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	syncService := a.syncService()
	coordinator := service.NewCoordinator(syncService, auth, a.enrichmentService(client), cfg.Sync.EnrichAfterSync, log)
	systemService := service.NewSystemService(a.db)

	var sched *scheduler.Scheduler
	if !c.noSchedule {
		sched, err = scheduler.New(cfg.Sync.Schedule, coordinator, cfg.Sync.RunTimeout, log)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		sched.Start()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(systemService, syncService, coordinator, cfg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	status := subcommands.ExitSuccess
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		status = subcommands.ExitFailure
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		status = subcommands.ExitFailure
	}
	// Runs are waited for up to the shutdown deadline and then cancelled;
	// a late cron tick is refused.
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sync cancelled at shutdown")
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("scheduler did not stop in time")
		}
	}

	log.Info().Msg("server exited")
	return status
}
