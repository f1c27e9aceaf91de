package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/config"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/logging"
	"github.com/ndewijer/brokerage-sync/internal/notify"
	"github.com/ndewijer/brokerage-sync/internal/repository"
	"github.com/ndewijer/brokerage-sync/internal/service"
	"github.com/ndewijer/brokerage-sync/internal/yahoo"
)

// app holds the dependencies shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	db        *database.DB
	store     *repository.Store
	publisher notify.Publisher
	closers   []func() error
}

// loadConfig reads the configuration and builds the logger. Config errors
// are printed to stderr since no logger exists yet.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr), nil
}

// newApp opens and migrates the database and connects the run publisher.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	applied, err := database.Migrate(ctx, db)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Debug().Str("dialect", string(db.Dialect)).Int("applied", applied).Msg("database ready")

	a.store = repository.NewStore(db)
	a.publisher = notify.Nop{}
	if cfg.Redis.URL != "" {
		pub, err := notify.NewRedisPublisher(cfg.Redis.URL, notify.DefaultChannel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		if err := pub.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, run events may be lost")
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}
	return a, nil
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

func (a *app) syncService() *service.SyncService {
	return service.NewSyncService(a.store, a.publisher, service.SyncOptions{
		HistoryRange:     a.cfg.Sync.HistoryRange,
		DefaultCurrency:  a.cfg.Sync.DefaultCurrency,
		FetchConcurrency: a.cfg.Sync.FetchConcurrency,
		FetchTimeout:     a.cfg.Broker.Timeout,
	}, a.log)
}

func (a *app) brokerClient() *brokerage.Client {
	return brokerage.NewClient(brokerage.ClientConfig{
		BaseURL:       a.cfg.Broker.BaseURL,
		Timeout:       a.cfg.Broker.Timeout,
		RatePerSecond: a.cfg.Broker.RatePerSecond,
	}, a.log)
}

// authenticator logs in with the configured credentials. The session cache
// is only used when SESSION_KEY is set.
func (a *app) authenticator(client *brokerage.Client) (*brokerage.SessionAuthenticator, error) {
	auth := &brokerage.SessionAuthenticator{
		Client: client,
		Credentials: brokerage.Credentials{
			Email:    a.cfg.Broker.Email,
			Password: a.cfg.Broker.Password,
			OTP:      a.cfg.Broker.OTP,
		},
		Log: logging.Component(a.log, "auth"),
	}
	if a.cfg.Broker.SessionKey != "" {
		cache, err := brokerage.NewTokenCache(a.cfg.Broker.SessionCachePath, a.cfg.Broker.SessionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_KEY: %w", err)
		}
		auth.Cache = cache
	}
	return auth, nil
}

func (a *app) enrichmentService(descriptions brokerage.SecuritySource) *service.EnrichmentService {
	return service.NewEnrichmentService(a.store, descriptions, yahoo.NewFinanceClient(), a.cfg.Sync.DefaultCurrency, a.log)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
