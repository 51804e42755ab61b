package commands

import (
	"context"
	"io"

	cli "github.com/urfave/cli/v3"

	"github.com/njchilds90/mdsafe/internal/state"
)

// FragmentCommand describes the "fragment" subcommand.
func FragmentCommand() *cli.Command {
	return &cli.Command{
		Name:      "fragment",
		Usage:     "Sanitizes a short HTML fragment such as a title or question text",
		Action:    Fragment,
		ArgsUsage: "[SOURCE]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "text", Aliases: []string{"t"}, Usage: "output plain text without any markup"},
			outputFlag,
		},
	}
}

// Fragment sanitizes SOURCE (or STDIN).
func Fragment(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src, err := readSource(cmd)
	if err != nil {
		return err
	}

	var out string
	if cmd.Bool("text") {
		out = env.Renderer.PlainText(string(src))
	} else {
		out = env.Renderer.SanitizeFragment(string(src))
	}
	return withOutput(cmd, func(w io.Writer) error {
		_, err := io.WriteString(w, out+"\n")
		return err
	})
}
