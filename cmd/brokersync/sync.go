package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type syncCmd struct {
	otp      string
	email    string
	password string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "run one sync against the brokerage" }
func (*syncCmd) Usage() string {
	return `brokersync sync [-otp <code>] [-email <email>] [-password <password>]

  Logs in, pulls accounts, positions, history and activities, and upserts
  them into the database. Flags override BROKER_EMAIL, BROKER_PASSWORD and
  BROKER_OTP.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.otp, "otp", "", "One-time code for two-factor login")
	f.StringVar(&c.email, "email", "", "Brokerage login email")
	f.StringVar(&c.password, "password", "", "Brokerage login password")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if c.email != "" {
		cfg.Broker.Email = c.email
	}
	if c.password != "" {
		cfg.Broker.Password = c.password
	}
	if c.otp != "" {
		cfg.Broker.OTP = c.otp
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

	auth, err := a.authenticator(a.brokerClient())
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	run, err := a.syncService().Execute(ctx, auth)
	if err != nil {
		fail("sync failed: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("run %s %s: %d accounts, %d positions, %d snapshots, %d activities, %d dividends\n",
		run.ID, run.Status,
		run.Counts.Accounts, run.Counts.Positions, run.Counts.Snapshots,
		run.Counts.Activities, run.Counts.Dividends)

	if cfg.Sync.EnrichAfterSync {
		result, err := a.enrichmentService(auth.Client).EnrichSecurities(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("enrichment after sync failed")
		} else {
			fmt.Printf("enriched %d securities (%d described, %d quoted)\n", result.Securities, result.Described, result.Quoted)
		}
	}
	return subcommands.ExitSuccess
}
