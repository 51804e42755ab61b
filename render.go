package mdsafe

import (
	"bytes"
	"net/url"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"mvdan.cc/xurls/v2"
)

// DefaultHighlightStyle is the chroma style used for fenced code blocks.
const DefaultHighlightStyle = "github"

// Result is the output of one Markdown render. It is built fresh on every
// call.
type Result struct {
	// HTML is sanitized and meant to be inserted as-is.
	HTML string `json:"html"`
	// CSSText is the filtered stylesheet extracted from <style> blocks.
	CSSText string `json:"cssText"`
	// FontHrefs are the https stylesheet URLs taken from @import
	// directives, in source order. Never nil.
	FontHrefs []string `json:"fontHrefs"`
}

// Renderer turns creator-authored Markdown and HTML fragments into content
// safe to show to any visitor. A Renderer is immutable once built and may
// be shared between goroutines. Create one with New, the zero value has no
// Markdown converter or policies.
type Renderer struct {
	log       *zap.Logger
	md        goldmark.Markdown
	body      *Sanitizer
	fragment  *Sanitizer
	text      *bluemonday.Policy
	fontHosts map[string]bool
}

type options struct {
	log             *zap.Logger
	fontHosts       []string
	highlightStyle  string
	fragmentLinkify bool
	maxDepth        int
}

// Option configures a Renderer.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithFontHosts restricts font imports to the given hosts. Without hosts
// any https URL is accepted.
func WithFontHosts(hosts ...string) Option {
	return func(o *options) { o.fontHosts = append(o.fontHosts, hosts...) }
}

// WithHighlightStyle selects the chroma style for fenced code blocks. An
// empty name turns highlighting off.
func WithHighlightStyle(name string) Option {
	return func(o *options) { o.highlightStyle = name }
}

// WithFragmentLinkify makes SanitizeFragment turn bare URLs into links.
func WithFragmentLinkify(on bool) Option {
	return func(o *options) { o.fragmentLinkify = on }
}

// WithMaxDepth limits element nesting in sanitized output, see
// Policy.MaxDepth.
func WithMaxDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

// New builds a Renderer.
func New(opts ...Option) *Renderer {
	o := options{highlightStyle: DefaultHighlightStyle}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	exts := []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.NewLinkify(
			extension.WithLinkifyAllowedProtocols([][]byte{
				[]byte("http:"),
				[]byte("https:"),
			}),
			extension.WithLinkifyURLRegexp(xurls.Strict()),
		),
	}
	if o.highlightStyle != "" {
		exts = append(exts, highlighting.NewHighlighting(
			highlighting.WithStyle(o.highlightStyle),
			highlighting.WithFormatOptions(
				chromahtml.WithLineNumbers(false),
			),
		))
	}

	bodyPolicy := FormPolicy()
	bodyPolicy.MaxDepth = o.maxDepth
	fragmentPolicy := FormPolicy()
	fragmentPolicy.MaxDepth = o.maxDepth
	fragmentPolicy.Linkify = o.fragmentLinkify

	r := &Renderer{
		log: o.log.Named("mdsafe"),
		md: goldmark.New(
			goldmark.WithExtensions(exts...),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
				gmhtml.WithUnsafe(),
			),
		),
		body:     NewSanitizer(bodyPolicy),
		fragment: NewSanitizer(fragmentPolicy),
		text:     bluemonday.StrictPolicy(),
	}
	if len(o.fontHosts) > 0 {
		r.fontHosts = make(map[string]bool, len(o.fontHosts))
		for _, h := range o.fontHosts {
			r.fontHosts[strings.ToLower(strings.TrimSpace(h))] = true
		}
	}
	return r
}

// RenderMarkdown converts untrusted Markdown into sanitized HTML, a
// filtered stylesheet and the list of font stylesheets to load. It never
// fails: anything that cannot be processed safely is left out.
func (r *Renderer) RenderMarkdown(markdown string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger().Error("Markdown rendering aborted, dropping content", zap.Any("panic", p))
			res = Result{FontHrefs: []string{}}
		}
	}()

	body, rawCSS := ExtractStyleBlocks(markdown)
	cssText, fontHrefs := ExtractFontImports(rawCSS)

	var (
		buf  bytes.Buffer
		safe string
	)
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		r.log.Error("Markdown conversion failed", zap.Error(err))
	} else if safe, err = r.body.Sanitize(buf.String()); err != nil {
		r.log.Error("HTML sanitization failed", zap.Error(err))
		safe = ""
	}

	res = Result{
		HTML:      safe,
		CSSText:   FilterCSSText(cssText),
		FontHrefs: r.allowedFonts(fontHrefs),
	}
	r.log.Debug("Markdown rendered",
		zap.Int("source", len(markdown)),
		zap.Int("html", len(res.HTML)),
		zap.Int("css", len(res.CSSText)),
		zap.Strings("fonts", res.FontHrefs))
	return res
}

// logger is safe to call on a Renderer that was not built by New.
func (r *Renderer) logger() *zap.Logger {
	if r.log == nil {
		return zap.NewNop()
	}
	return r.log
}

// SanitizeFragment cleans a short HTML field such as a form title or
// question text. Empty input gives "".
func (r *Renderer) SanitizeFragment(input string) (out string) {
	if input == "" {
		return ""
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger().Error("Fragment sanitization aborted, dropping content", zap.Any("panic", p))
			out = ""
		}
	}()

	out, err := r.fragment.Sanitize(input)
	if err != nil {
		r.log.Error("Fragment sanitization failed", zap.Error(err))
		return ""
	}
	return out
}

// PlainText strips all markup from input and collapses whitespace. The
// result is unescaped text and must be escaped again before it is placed
// into HTML.
func (r *Renderer) PlainText(input string) string {
	if input == "" {
		return ""
	}
	text := html.UnescapeString(r.text.Sanitize(input))
	return strings.Join(strings.Fields(text), " ")
}

// BuildAndApply renders markdown, installs its stylesheet under styleID
// and its fonts under fontKey in doc, and returns the HTML. The style
// element is only touched when there is CSS to apply.
func (r *Renderer) BuildAndApply(doc *Document, markdown, styleID, fontKey string) (string, error) {
	res := r.RenderMarkdown(markdown)
	if strings.TrimSpace(res.CSSText) != "" {
		if err := doc.UpsertStyle(styleID, res.CSSText); err != nil {
			return "", err
		}
	}
	if len(res.FontHrefs) > 0 {
		if err := doc.EnsureFonts(res.FontHrefs, fontKey); err != nil {
			return "", err
		}
	}
	return res.HTML, nil
}

func (r *Renderer) allowedFonts(hrefs []string) []string {
	if r.fontHosts == nil {
		return hrefs
	}
	kept := hrefs[:0]
	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil || !r.fontHosts[strings.ToLower(u.Hostname())] {
			r.log.Debug("Dropping font import from host not on the list", zap.String("href", href))
			continue
		}
		kept = append(kept, href)
	}
	return kept
}

var defaultRenderer = sync.OnceValue(func() *Renderer { return New() })

// RenderMarkdown renders markdown with a Renderer using default options.
func RenderMarkdown(markdown string) Result {
	return defaultRenderer().RenderMarkdown(markdown)
}

// SanitizeFragment sanitizes input with a Renderer using default options.
func SanitizeFragment(input string) string {
	return defaultRenderer().SanitizeFragment(input)
}
