package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ndewijer/brokerage-sync/internal/database"
)

type migrateCmd struct {
	status bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `brokersync migrate [-status]

  Applies pending schema migrations to DATABASE_URL. With -status it only
  reports the applied and latest versions.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.status, "status", false, "Report the schema version without migrating")
}

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, _, err := loadConfig()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		fail("failed to open database: %v", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if !c.status {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			fail("migration failed: %v", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("applied %d migrations\n", applied)
	}

	status, err := database.Status(ctx, db)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s schema at version %d of %d\n", db.Dialect, status.Current, status.Latest)
	return subcommands.ExitSuccess
}
