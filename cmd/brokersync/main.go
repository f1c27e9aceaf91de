// Command brokersync mirrors a brokerage account into a local database.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&syncCmd{}, "sync")
	commander.Register(&enrichCmd{}, "sync")
	commander.Register(&runsCmd{}, "sync")
	commander.Register(&serveCmd{}, "server")
	commander.Register(&migrateCmd{}, "database")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
