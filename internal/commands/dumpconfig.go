package commands

import (
	"context"
	"io"

	cli "github.com/urfave/cli/v3"

	"github.com/njchilds90/mdsafe/internal/config"
	"github.com/njchilds90/mdsafe/internal/state"
)

// DumpConfigCommand describes the "dumpconfig" subcommand.
func DumpConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "dumpconfig",
		Usage: "Dumps either default or actual configuration (YAML)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
			outputFlag,
		},
		Action: DumpConfig,
	}
}

// DumpConfig writes the active configuration, which is the embedded
// defaults with the configuration file applied on top.
func DumpConfig(ctx context.Context, cmd *cli.Command) error {
	var (
		data []byte
		err  error
	)
	if cmd.Bool("default") {
		data = config.Prepare()
	} else if data, err = config.Dump(state.EnvFromContext(ctx).Cfg); err != nil {
		return err
	}
	return withOutput(cmd, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
