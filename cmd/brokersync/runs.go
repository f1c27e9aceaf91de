package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/ndewijer/brokerage-sync/internal/api/request"
)

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recent sync runs" }
func (*runsCmd) Usage() string {
	return `brokersync runs [-limit <n>]

  Lists the most recent sync runs, newest first.
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", request.DefaultHistoryLimit, "Number of runs to show")
}

func (c *runsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit < 1 {
		fail("-limit must be positive")
		return subcommands.ExitUsageError
	}

	cfg, log, err := loadConfig()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	runs, err := a.syncService().RunHistory(ctx, c.limit)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tACCOUNTS\tPOSITIONS\tSNAPSHOTS\tACTIVITIES\tDIVIDENDS\tERROR")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = *run.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			run.ID, run.StartedAt.Local().Format(time.DateTime), run.Status,
			run.Counts.Accounts, run.Counts.Positions, run.Counts.Snapshots,
			run.Counts.Activities, run.Counts.Dividends, errMsg)
	}
	if err := w.Flush(); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
