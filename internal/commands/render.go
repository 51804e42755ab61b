package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/njchilds90/mdsafe"
	"github.com/njchilds90/mdsafe/internal/state"
)

// RenderCommand describes the "render" subcommand.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Renders form Markdown into sanitized HTML, CSS and font list",
		Action:    Render,
		ArgsUsage: "[SOURCE]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "output `TYPE`: json, html or page"},
			&cli.StringFlag{Name: "style-id", Usage: "`ID` of the style element in page output (default from configuration)"},
			&cli.StringFlag{Name: "font-key", Usage: "`KEY` for font links in page output (default from configuration)"},
			&cli.StringFlag{Name: "template", Usage: "HTML `FILE` to inject page output into"},
			&cli.StringFlag{Name: "title", Usage: "page title, markup is stripped"},
			outputFlag,
		},
	}
}

// Render converts Markdown from SOURCE (or STDIN) and writes the result.
func Render(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src, err := readSource(cmd)
	if err != nil {
		return err
	}

	switch format := cmd.String("format"); format {
	case "json":
		res := env.Renderer.RenderMarkdown(string(src))
		return withOutput(cmd, func(w io.Writer) error { return writeJSON(w, res) })

	case "html":
		res := env.Renderer.RenderMarkdown(string(src))
		return withOutput(cmd, func(w io.Writer) error {
			_, err := io.WriteString(w, res.HTML)
			return err
		})

	case "page":
		doc, err := loadPage(cmd.String("template"))
		if err != nil {
			return err
		}
		styleID := cmd.String("style-id")
		if styleID == "" {
			styleID = env.Cfg.Page.StyleID
		}
		fontKey := cmd.String("font-key")
		if fontKey == "" {
			fontKey = env.Cfg.Page.FontKey
		}
		body, err := env.Renderer.BuildAndApply(doc, string(src), styleID, fontKey)
		if err != nil {
			return fmt.Errorf("unable to apply styles: %w", err)
		}
		if title := env.Renderer.PlainText(cmd.String("title")); title != "" {
			if err := doc.SetTitle(title); err != nil {
				return err
			}
		}
		if err := doc.SetBodyHTML(body); err != nil {
			return fmt.Errorf("unable to set page body: %w", err)
		}
		env.Log.Debug("Page assembled", zap.String("style", styleID), zap.Strings("fonts", doc.FontLinks(fontKey)))
		return withOutput(cmd, doc.Render)

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func loadPage(template string) (*mdsafe.Document, error) {
	if template == "" {
		return mdsafe.NewDocument(), nil
	}
	data, err := os.ReadFile(template)
	if err != nil {
		return nil, fmt.Errorf("unable to read page template: %w", err)
	}
	doc, err := mdsafe.ParseDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to parse page template: %w", err)
	}
	return doc, nil
}
