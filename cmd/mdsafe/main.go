package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/njchilds90/mdsafe/internal/commands"
	"github.com/njchilds90/mdsafe/internal/state"
)

const appName = "mdsafe"

// set by the linker
var version = "dev"

// initializeAppContext prepares application context before command
// execution but after command line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if err := env.Prepare(appName, configFile, cmd.Bool("debug")); err != nil {
		return ctx, fmt.Errorf("unable to prepare environment: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	if er := env.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to close log: %w", er))
	}
	return
}

// Errors from subcommands are returned as is and reported here rather than
// through cli.Exit.
var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)

	if env.Cfg != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            appName,
		Usage:           "safe rendering of user-authored form Markdown",
		Version:         version + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Sources: cli.EnvVars("MDSAFE_CONFIG"), Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log debug messages to console"},
		},
		Commands: []*cli.Command{
			commands.RenderCommand(),
			commands.FragmentCommand(),
			commands.FormCommand(),
			commands.DumpConfigCommand(),
		},
	}

	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		if !errWasHandled {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		}
		os.Exit(1)
	}
}
