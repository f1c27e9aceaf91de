package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
)

type enrichCmd struct {
	quotesOnly bool
}

func (*enrichCmd) Name() string     { return "enrich" }
func (*enrichCmd) Synopsis() string { return "refresh security details and prices" }
func (*enrichCmd) Usage() string {
	return `brokersync enrich [-quotes-only]

  Describes every held security through the brokerage and prices it from
  Yahoo Finance. With -quotes-only no brokerage login is made.
`
}

func (c *enrichCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.quotesOnly, "quotes-only", false, "Skip the brokerage and only fetch prices")
}

func (c *enrichCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := loadConfig()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	validate := cfg.ValidateSync
	if c.quotesOnly {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
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

	var descriptions brokerage.SecuritySource
	if !c.quotesOnly {
		auth, err := a.authenticator(a.brokerClient())
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		if _, err := auth.Authenticate(ctx); err != nil {
			fail("login failed: %v", err)
			return subcommands.ExitFailure
		}
		descriptions = auth.Client
	}

	result, err := a.enrichmentService(descriptions).EnrichSecurities(ctx)
	if err != nil {
		fail("enrichment failed: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("enriched %d securities (%d described, %d quoted, %d failed)\n",
		result.Securities, result.Described, result.Quoted, result.Failed)
	return subcommands.ExitSuccess
}
