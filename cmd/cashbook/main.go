package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"cashbook/internal/cli"
	applog "cashbook/internal/log"
)

var (
	// Version contains the application version number. It's set via ldflags
	// when building.
	Version = ""

	// CommitSHA contains the SHA of the commit that this application was built
	// against. It's set via ldflags when building.
	CommitSHA = ""

	command struct {
		Version kong.VersionFlag `help:"Show version information"`
		cli.Commands
	}
)

func main() {
	cli.LoadEnvFile()

	ctx := kong.Parse(&command,
		kong.Vars{
			"version": buildVersion(),
		},
		kong.Name("cashbook"),
		kong.Description("A cash ledger: vouchers, approvals, transfers and balances."),
		kong.UsageOnError(),
		kong.Bind(&command.Globals),
	)

	cfg, err := cli.LoadAndValidateConfig()
	ctx.FatalIfErrorf(err)
	logger := cli.SetupLogger(cfg.LogLevel)

	app, err := cli.NewApp(cfg, logger)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(app)
	if cerr := app.Close(); cerr != nil {
		logger.Warn("Failed to close resources", applog.FieldError, cerr)
	}
	if err != nil {
		cli.PrintError(ctx.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func buildVersion() string {
	if Version == "" {
		Version = "dev"
	}
	if CommitSHA == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, CommitSHA)
}
