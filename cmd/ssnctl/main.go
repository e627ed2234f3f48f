// Command ssnctl is the operator CLI for SSN filings.
//
//	ssnctl [-db ssn.db] <command> [flags]
//
// Commands talk to the same SQLite database and regulator as the server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/warp/ssn-filing/app"
	"github.com/warp/ssn-filing/config"
)

// As a short lived process, the CLI keeps its shared settings in globals.
var (
	cfg    = config.Load()
	dbPath = flag.String("db", cfg.DatabasePath, "SQLite database path")
)

// openApp builds the service graph for one command.
func openApp(ctx context.Context) (*app.App, error) {
	cfg.DatabasePath = *dbPath
	logger := config.NewLogger(cfg.LogLevel, "text")
	logger.SetOutput(os.Stderr)
	return app.New(ctx, cfg, logger)
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&validateCmd{}, "submissions")
	commander.Register(&createCmd{}, "submissions")
	commander.Register(&sendCmd{}, "submissions")
	commander.Register(&rectifyCmd{}, "submissions")
	commander.Register(&cancelRectificationCmd{}, "submissions")
	commander.Register(&syncCmd{}, "submissions")

	commander.Register(&generateCmd{}, "stock")
	commander.Register(&clearStockCmd{}, "stock")

	commander.Register(&alertsCmd{}, "calendar")
	commander.Register(&weeksCmd{}, "calendar")

	commander.Register(&importCmd{}, "admin")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
