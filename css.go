package mdsafe

import (
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// allowedProps is the fixed set of CSS properties creators may use. It is
// never modified after package initialization.
var allowedProps = map[string]struct{}{
	"color":               {},
	"background":          {},
	"background-color":    {},
	"background-image":    {},
	"background-size":     {},
	"background-position": {},
	"background-repeat":   {},
	"font":                {},
	"font-family":         {},
	"font-weight":         {},
	"font-size":           {},
	"font-style":          {},
	"line-height":         {},
	"letter-spacing":      {},
	"text-align":          {},
	"text-decoration":     {},
	"text-transform":      {},
	"padding":             {},
	"padding-top":         {},
	"padding-right":       {},
	"padding-bottom":      {},
	"padding-left":        {},
	"margin":              {},
	"margin-top":          {},
	"margin-right":        {},
	"margin-bottom":       {},
	"margin-left":         {},
	"border":              {},
	"border-radius":       {},
	"border-width":        {},
	"border-style":        {},
	"border-color":        {},
	"box-shadow":          {},
	"width":               {},
	"min-width":           {},
	"max-width":           {},
	"height":              {},
	"min-height":          {},
	"max-height":          {},
	"display":             {},
	"flex":                {},
	"flex-direction":      {},
	"justify-content":     {},
	"align-items":         {},
	"gap":                 {},
	"opacity":             {},
}

// Functions that make the browser fetch or evaluate something without
// going through url().
var blockedFunctions = map[string]bool{
	"expression(":         true,
	"image(":              true,
	"image-set(":          true,
	"-webkit-image-set(":  true,
	"cross-fade(":         true,
	"-webkit-cross-fade(": true,
	"element(":            true,
	"-moz-element(":       true,
	"paint(":              true,
	"src(":                true,
}

var (
	urlCallRe   = regexp.MustCompile(`(?i)url\s*\(`)
	secureURLRe = regexp.MustCompile(`(?i)^url\(["']?https:`)
)

// AllowedProperty reports whether the CSS property name is on the
// allow-list. The lookup is case-insensitive.
func AllowedProperty(name string) bool {
	_, ok := allowedProps[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// AllowedProperties returns a sorted copy of the property allow-list.
func AllowedProperties() []string {
	props := make([]string, 0, len(allowedProps))
	for p := range allowedProps {
		props = append(props, p)
	}
	slices.Sort(props)
	return props
}

// Declaration is a single "property: value" pair.
type Declaration struct {
	Property string
	Value    string
}

func (d Declaration) String() string {
	return d.Property + ": " + d.Value
}

// Rule is a selector with its declaration block.
type Rule struct {
	Selector     string
	Declarations []Declaration
}

func (r Rule) String() string {
	parts := make([]string, len(r.Declarations))
	for i, d := range r.Declarations {
		parts[i] = d.String()
	}
	return r.Selector + " { " + strings.Join(parts, "; ") + " }"
}

// ParseDeclarations splits a declaration list on ";" and each segment on
// its first ":". Property names are lower-cased, both sides are trimmed.
// Segments without a colon or without a property name are skipped.
func ParseDeclarations(text string) []Declaration {
	var decls []Declaration
	for _, raw := range strings.Split(text, ";") {
		prop, value, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		decls = append(decls, Declaration{Property: prop, Value: strings.TrimSpace(value)})
	}
	return decls
}

// ParseRules splits stylesheet text into selector/body blocks. Text is cut
// on "}" and every piece must contain exactly one "{"; anything else
// (including the inner structure of nested at-rules) is skipped.
func ParseRules(cssText string) []Rule {
	var rules []Rule
	for _, block := range strings.Split(cssText, "}") {
		if strings.Count(block, "{") != 1 {
			continue
		}
		selector, body, _ := strings.Cut(block, "{")
		selector, body = strings.TrimSpace(selector), strings.TrimSpace(body)
		if selector == "" || body == "" {
			continue
		}
		rules = append(rules, Rule{Selector: selector, Declarations: ParseDeclarations(body)})
	}
	return rules
}

// FilterDeclarations keeps the allow-listed, safe declarations of an inline
// style value and joins them with "; ". It never fails; an input with
// nothing worth keeping yields "".
func FilterDeclarations(declarationText string) string {
	kept := filterDeclarations(ParseDeclarations(declarationText))
	parts := make([]string, len(kept))
	for i, d := range kept {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// FilterCSSText applies the declaration filter to every rule of a
// stylesheet. Each surviving rule is written as "selector { a: b; c: d }",
// one per line. Rules left without declarations are omitted.
func FilterCSSText(cssText string) string {
	var out []string
	for _, r := range ParseRules(cssText) {
		if !safeSelector(r.Selector) {
			continue
		}
		kept := filterDeclarations(r.Declarations)
		if len(kept) == 0 {
			continue
		}
		out = append(out, Rule{Selector: r.Selector, Declarations: kept}.String())
	}
	return strings.Join(out, "\n")
}

func filterDeclarations(decls []Declaration) []Declaration {
	kept := make([]Declaration, 0, len(decls))
	for _, d := range decls {
		if _, ok := allowedProps[d.Property]; !ok {
			continue
		}
		if !safeValue(d.Value) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// safeSelector rejects selectors that would carry an at-rule, a leftover
// statement or markup into the emitted stylesheet.
func safeSelector(sel string) bool {
	return sel != "" && !strings.ContainsAny(sel, "<@;")
}

// safeValue reports whether a declaration value may be emitted. Any url()
// must be the leading token and point to https; every other url() in the
// value must be https too.
func safeValue(value string) bool {
	if value == "" || strings.ContainsAny(value, `\<`) {
		return false
	}
	if urlCallRe.MatchString(value) && !secureURLRe.MatchString(value) {
		return false
	}

	l := css.NewLexer(parse.NewInputString(value))
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			return l.Err() == io.EOF
		case css.BadURLToken, css.BadStringToken:
			return false
		case css.URLToken:
			if !secureURLToken(string(data)) {
				return false
			}
		case css.FunctionToken:
			if blockedFunctions[strings.ToLower(string(data))] {
				return false
			}
		}
	}
}

// secureURLToken checks a lexed url(...) token, quoted or not. The lexer
// accepts a token cut short by the end of input; those are refused.
func secureURLToken(tok string) bool {
	if len(tok) < 5 || !strings.HasSuffix(tok, ")") {
		return false
	}
	arg := strings.Trim(strings.TrimSpace(tok[4:len(tok)-1]), `"'`)
	return strings.HasPrefix(strings.ToLower(arg), "https:")
}
