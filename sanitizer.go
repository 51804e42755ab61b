package mdsafe

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"mvdan.cc/xurls/v2"
)

// Transformer is a function that receives an allowed HTML node and may
// mutate it in place (e.g., adding or removing attributes). Returning
// nil removes the node from the output entirely.
type Transformer func(n *html.Node) *html.Node

// AttrHook rewrites the value of an allowed attribute on the element tag.
// Returning false removes the attribute.
type AttrHook func(tag, val string) (string, bool)

// DisallowedMode selects what happens to elements that are not allowed.
type DisallowedMode int

const (
	// EscapeDisallowed renders the tags as text and walks the children.
	EscapeDisallowed DisallowedMode = iota
	// StripDisallowed removes the element and all of its descendants.
	StripDisallowed
	// UnwrapDisallowed removes the element but keeps its children.
	UnwrapDisallowed
)

// Policy defines what HTML is considered safe.
type Policy struct {
	// AllowedTags is the list of tag names that are kept in output.
	AllowedTags []string

	// AllowedAttributes maps tag names to the list of attribute names
	// that are kept on that tag. Use "*" as a key to allow attributes
	// on every tag.
	AllowedAttributes map[string][]string

	// AllowedAttrPrefixes allows every attribute whose name starts with
	// one of the prefixes (e.g. "data-", "aria-") on every tag.
	AllowedAttrPrefixes []string

	// AllowedSchemes lists the URL schemes (e.g. "http", "https",
	// "mailto") permitted in href, src, action and cite attributes. Any
	// attribute whose URL has another scheme is removed. Relative URLs
	// are always allowed.
	AllowedSchemes []string

	// Disallowed controls behavior for element nodes not in AllowedTags.
	Disallowed DisallowedMode

	// DropContent lists tags that are removed together with their
	// descendants regardless of Disallowed.
	DropContent []string

	// AttrHooks maps attribute names to hooks run on every allowed
	// attribute with that name, after the allow-list and scheme checks.
	AttrHooks map[string]AttrHook

	// Transformers is an optional slice of Transformer functions applied
	// in order to every allowed element node after attribute filtering.
	Transformers []Transformer

	// Linkify converts plain-text URLs found in text nodes into <a>
	// elements pointing to those URLs. Only URLs passing the scheme
	// check are converted.
	Linkify bool

	// MaxDepth limits how deeply nested elements may be. Nodes at
	// a depth greater than MaxDepth are treated as disallowed.
	// Zero means unlimited.
	MaxDepth int
}

// Sanitizer is a compiled Policy. It is immutable and safe for concurrent
// use.
type Sanitizer struct {
	tags        map[string]bool
	attrs       map[string]map[string]bool
	prefixes    []string
	schemes     map[string]bool
	dropContent map[string]bool
	hooks       map[string]AttrHook
	transform   []Transformer
	mode        DisallowedMode
	linkify     bool
	maxDepth    int
}

var (
	attrNameRe = regexp.MustCompile(`^[a-z][a-z0-9_.:-]*$`)
	linkRe     = xurls.Strict()
)

// FormPolicy returns the policy used for creator-authored form content:
// structural and inline formatting tags, links and images, generic
// attributes including style (filtered through FilterDeclarations),
// aria-* and data-* attributes. Disallowed elements are unwrapped, while
// script-like and embedding elements disappear with their content.
func FormPolicy() *Policy {
	return &Policy{
		AllowedTags: []string{
			"a", "abbr", "b", "blockquote", "br", "code", "div", "em", "i", "img", "li",
			"ol", "p", "pre", "s", "small", "span", "strong", "sub", "sup", "u", "ul",
			"h1", "h2", "h3", "h4", "h5", "h6", "hr", "section", "article", "header", "footer",
			"del", "table", "thead", "tbody", "tr", "th", "td",
		},
		AllowedAttributes: map[string][]string{
			"*":  {"class", "id", "href", "target", "rel", "src", "alt", "title", "style", "role"},
			"th": {"align"},
			"td": {"align"},
		},
		AllowedAttrPrefixes: []string{"aria-", "data-"},
		AllowedSchemes:      []string{"http", "https", "mailto", "tel"},
		Disallowed:          UnwrapDisallowed,
		DropContent: []string{
			"script", "style", "iframe", "object", "embed", "form", "noscript", "template",
			"textarea", "title", "svg", "math", "select", "xmp", "noembed", "noframes",
		},
		AttrHooks: map[string]AttrHook{
			"style": filterStyleAttr,
		},
		Transformers: []Transformer{noopenerLinks},
	}
}

func filterStyleAttr(_, val string) (string, bool) {
	val = FilterDeclarations(val)
	return val, val != ""
}

// noopenerLinks keeps pages opened from creator links from reaching back
// into the form through window.opener.
func noopenerLinks(n *html.Node) *html.Node {
	if n.Data == "a" && GetAttr(n, "target") == "_blank" {
		SetAttr(n, "rel", "noopener noreferrer")
	}
	return n
}

// NewSanitizer compiles p. If p is nil, FormPolicy is used. The policy
// must not be mutated afterwards.
func NewSanitizer(p *Policy) *Sanitizer {
	if p == nil {
		p = FormPolicy()
	}
	s := &Sanitizer{
		tags:        sliceToSet(p.AllowedTags),
		attrs:       make(map[string]map[string]bool, len(p.AllowedAttributes)),
		schemes:     sliceToSet(p.AllowedSchemes),
		dropContent: sliceToSet(p.DropContent),
		hooks:       make(map[string]AttrHook, len(p.AttrHooks)),
		transform:   p.Transformers,
		mode:        p.Disallowed,
		linkify:     p.Linkify,
		maxDepth:    p.MaxDepth,
	}
	for tag, list := range p.AllowedAttributes {
		s.attrs[strings.ToLower(tag)] = sliceToSet(list)
	}
	for _, prefix := range p.AllowedAttrPrefixes {
		s.prefixes = append(s.prefixes, strings.ToLower(prefix))
	}
	for name, hook := range p.AttrHooks {
		s.hooks[strings.ToLower(name)] = hook
	}
	return s
}

// Sanitize parses htmlStr as a body fragment, applies p, and returns the
// sanitized HTML. If p is nil, FormPolicy is used.
func Sanitize(htmlStr string, p *Policy) (string, error) {
	return NewSanitizer(p).Sanitize(htmlStr)
}

// Sanitize returns the sanitized form of the HTML fragment htmlStr.
func (s *Sanitizer) Sanitize(htmlStr string) (string, error) {
	return s.SanitizeReader(strings.NewReader(htmlStr))
}

// SanitizeReader reads an HTML fragment from r and returns the sanitized
// HTML string.
func (s *Sanitizer) SanitizeReader(r io.Reader) (string, error) {
	nodes, err := html.ParseFragment(r, bodyContext())
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		s.walk(&buf, n, 1, false)
	}
	return buf.String(), nil
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func (s *Sanitizer) walk(buf *bytes.Buffer, n *html.Node, depth int, inLink bool) {
	switch n.Type {
	case html.TextNode:
		if s.linkify && !inLink {
			s.writeLinkedText(buf, n.Data)
		} else {
			buf.WriteString(html.EscapeString(n.Data))
		}

	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if s.dropContent[tag] {
			return
		}
		tooDeep := s.maxDepth > 0 && depth > s.maxDepth
		allowed := s.tags[tag] && n.Namespace == "" && !tooDeep

		if !allowed {
			switch s.mode {
			case StripDisallowed:
			case UnwrapDisallowed:
				s.walkChildren(buf, n, depth+1, inLink)
			default:
				buf.WriteString(html.EscapeString(renderOpenTag(n)))
				s.walkChildren(buf, n, depth+1, inLink)
				if !isVoidElement(tag) {
					buf.WriteString(html.EscapeString("</" + tag + ">"))
				}
			}
			return
		}

		n.Attr = s.filterAttrs(n.Attr, tag)
		for _, t := range s.transform {
			if n = t(n); n == nil {
				return
			}
		}

		buf.WriteByte('<')
		buf.WriteString(tag)
		for _, a := range n.Attr {
			buf.WriteByte(' ')
			buf.WriteString(a.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(a.Val))
			buf.WriteByte('"')
		}
		if isVoidElement(tag) {
			buf.WriteString(" />")
			return
		}
		buf.WriteByte('>')
		s.walkChildren(buf, n, depth+1, inLink || tag == "a")
		buf.WriteString("</")
		buf.WriteString(tag)
		buf.WriteByte('>')

	case html.DocumentNode:
		s.walkChildren(buf, n, depth, inLink)

	case html.DoctypeNode, html.CommentNode:
		// dropped
	}
}

func (s *Sanitizer) walkChildren(buf *bytes.Buffer, n *html.Node, depth int, inLink bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(buf, c, depth, inLink)
	}
}

// SetAttr sets (or adds) the attribute key=val on node n. It is
// intended for use inside Transformer functions.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// GetAttr returns the value of the named attribute on n, or "" if not
// present.
func GetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// RemoveAttr removes the named attribute from n if present.
func RemoveAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

// --- helpers ---------------------------------------------------------

func (s *Sanitizer) filterAttrs(attrs []html.Attribute, tag string) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || !attrNameRe.MatchString(key) || !s.attrAllowed(key, tag) {
			continue
		}
		switch key {
		case "href", "src", "action", "cite":
			if !s.schemeAllowed(a.Val) {
				continue
			}
		}
		if hook, ok := s.hooks[key]; ok {
			val, keep := hook(tag, a.Val)
			if !keep {
				continue
			}
			a.Val = val
		}
		a.Key = key
		out = append(out, a)
	}
	return out
}

func (s *Sanitizer) attrAllowed(attr, tag string) bool {
	if s.attrs["*"][attr] || s.attrs[tag][attr] {
		return true
	}
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(attr, prefix) && len(attr) > len(prefix) {
			return true
		}
	}
	return false
}

// schemeAllowed checks an attribute URL. Values reach here already
// entity-decoded by the parser; control characters and whitespace that
// browsers ignore inside schemes are removed before parsing.
func (s *Sanitizer) schemeAllowed(raw string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if r <= 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, raw)

	u, err := url.Parse(cleaned)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		// relative
		return true
	}
	return s.schemes[scheme]
}

func sliceToSet(s []string) map[string]bool {
	m := make(map[string]bool, len(s))
	for _, v := range s {
		m[strings.ToLower(v)] = true
	}
	return m
}

func isVoidElement(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr":
		return true
	}
	return false
}

func renderOpenTag(n *html.Node) string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(n.Data)
	for _, a := range n.Attr {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(a.Val)
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	return sb.String()
}

// findElement returns the first element under n (n included) matching a.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if r := findElement(c, a); r != nil {
			return r
		}
	}
	return nil
}

func (s *Sanitizer) writeLinkedText(w *bytes.Buffer, text string) {
	last := 0
	for _, m := range linkRe.FindAllStringIndex(text, -1) {
		rawURL := text[m[0]:m[1]]
		if !s.schemeAllowed(rawURL) {
			continue
		}
		w.WriteString(html.EscapeString(text[last:m[0]]))
		w.WriteString(`<a href="`)
		w.WriteString(html.EscapeString(rawURL))
		w.WriteString(`" rel="noopener noreferrer">`)
		w.WriteString(html.EscapeString(rawURL))
		w.WriteString(`</a>`)
		last = m[1]
	}
	w.WriteString(html.EscapeString(text[last:]))
}
