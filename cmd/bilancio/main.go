package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"bilancio/internal/backend"
	"bilancio/internal/budget"
	"bilancio/internal/cli"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	app := &cli.App{Out: os.Stdout}
	cli.Register(commander, app)
	flag.Parse()

	// Help and flag listing need no backend.
	switch flag.Arg(0) {
	case "", "help", "flags", "commands":
		os.Exit(int(commander.Execute(context.Background())))
	}

	os.Exit(run(commander, app))
}

func run(commander *subcommands.Commander, app *cli.App) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		return 1
	}
	b, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err)
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	goals := services.NewGoalService(b.Store, b.Locker, b.Notifier, cfg.AutoDistributePercent)
	app.Txs = services.NewTransactionService(b.Store, b.Locker, goals, b.Notifier)
	app.Goals = goals
	app.Budgets = budget.NewWatcher(b.Store, logger)
	app.Logger = logger

	return int(commander.Execute(ctx))
}
