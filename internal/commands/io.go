// Package commands implements the mdsafe subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
)

// readSource returns the content of the first argument, or of the command
// input when there is no argument or it is "-".
func readSource(cmd *cli.Command) ([]byte, error) {
	if name := cmd.Args().First(); name != "" && name != "-" {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("unable to read source: %w", err)
		}
		return data, nil
	}
	r := cmd.Root().Reader
	if r == nil {
		r = os.Stdin
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read standard input: %w", err)
	}
	return data, nil
}

// withOutput calls fn with the file named by the "output" flag, or with the
// command output when the flag is not set.
func withOutput(cmd *cli.Command, fn func(io.Writer) error) (err error) {
	name := cmd.String("output")
	if name == "" || name == "-" {
		w := cmd.Root().Writer
		if w == nil {
			w = os.Stdout
		}
		return fn(w)
	}

	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() {
		if er := f.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close output file '%s': %w", name, er))
		}
	}()
	return fn(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("unable to encode result: %w", err)
	}
	return nil
}

var outputFlag = &cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write result to `FILE` instead of STDOUT"}
