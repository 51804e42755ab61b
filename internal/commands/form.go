package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/njchilds90/mdsafe"
	"github.com/njchilds90/mdsafe/internal/state"
)

// FormCommand describes the "form" subcommand.
func FormCommand() *cli.Command {
	return &cli.Command{
		Name:      "form",
		Usage:     "Renders a stored form record (JSON) with all creator fields sanitized",
		Action:    RenderForm,
		ArgsUsage: "[SOURCE]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "output `TYPE`: json or page"},
			&cli.StringFlag{Name: "template", Usage: "HTML `FILE` to inject page output into"},
			outputFlag,
		},
	}
}

// RenderForm reads a form record from SOURCE (or STDIN) and renders it.
func RenderForm(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src, err := readSource(cmd)
	if err != nil {
		return err
	}
	var form mdsafe.Form
	if err := json.Unmarshal(src, &form); err != nil {
		return fmt.Errorf("unable to decode form: %w", err)
	}

	rf := env.Renderer.RenderForm(form)
	env.Log.Debug("Form rendered", zap.String("id", rf.ID), zap.Int("questions", len(rf.Questions)))

	switch format := cmd.String("format"); format {
	case "json":
		return withOutput(cmd, func(w io.Writer) error { return writeJSON(w, rf) })

	case "page":
		doc, err := loadPage(cmd.String("template"))
		if err != nil {
			return err
		}
		if err := rf.Apply(doc); err != nil {
			return fmt.Errorf("unable to apply form styles: %w", err)
		}
		if rf.PlainTitle != "" {
			if err := doc.SetTitle(rf.PlainTitle); err != nil {
				return err
			}
		}
		if err := doc.SetBodyHTML(formBody(rf)); err != nil {
			return fmt.Errorf("unable to set page body: %w", err)
		}
		return withOutput(cmd, doc.Render)

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// formBody lays out an already sanitized form.
func formBody(rf mdsafe.RenderedForm) string {
	var sb strings.Builder
	sb.WriteString(`<header class="form-header"><h1>`)
	sb.WriteString(rf.Title)
	sb.WriteString(`</h1>`)
	if rf.Description != "" {
		sb.WriteString(`<div class="form-description">`)
		sb.WriteString(rf.Description)
		sb.WriteString(`</div>`)
	}
	sb.WriteString(`</header>`)
	if rf.Content.HTML != "" {
		sb.WriteString(`<section class="form-content">`)
		sb.WriteString(rf.Content.HTML)
		sb.WriteString(`</section>`)
	}
	for _, q := range rf.Questions {
		sb.WriteString(`<section class="form-question"><h2>`)
		sb.WriteString(q.Title)
		sb.WriteString(`</h2>`)
		if q.Description != "" {
			sb.WriteString(`<p>`)
			sb.WriteString(q.Description)
			sb.WriteString(`</p>`)
		}
		if len(q.Options) > 0 {
			sb.WriteString(`<ul>`)
			for _, o := range q.Options {
				sb.WriteString(`<li>`)
				sb.WriteString(o.Label)
				sb.WriteString(`</li>`)
			}
			sb.WriteString(`</ul>`)
		}
		sb.WriteString(`</section>`)
	}
	return sb.String()
}
