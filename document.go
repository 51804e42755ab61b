package mdsafe

import (
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrEnvironmentUnavailable is returned by Document methods when there is
// no document head to write to.
var ErrEnvironmentUnavailable = errors.New("mdsafe: document head is not available")

// Document is the page that receives rendered styles and font links. Style
// and link elements in its head are keyed by id: created on first use,
// updated afterwards, never removed. All methods are safe for concurrent
// use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

// NewDocument returns an empty HTML5 document.
func NewDocument() *Document {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	htmlEl := newElement(atom.Html)
	htmlEl.AppendChild(newElement(atom.Head))
	htmlEl.AppendChild(newElement(atom.Body))
	root.AppendChild(htmlEl)
	return &Document{root: root}
}

// ParseDocument reads an existing page, e.g. a site template, to inject
// into.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// FontLinkID is the element id EnsureFonts uses for href under key.
func FontLinkID(key, href string) string {
	return "font-" + key + "-" + base64.RawStdEncoding.EncodeToString([]byte(href))
}

// UpsertStyle makes the head contain exactly one <style id=id> whose text
// is cssText.
func (d *Document) UpsertStyle(id, cssText string) error {
	if d == nil {
		return ErrEnvironmentUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.head()
	if head == nil {
		return ErrEnvironmentUnavailable
	}

	el := childByID(head, id)
	switch {
	case el == nil:
		el = newStyle(id)
		head.AppendChild(el)
	case el.DataAtom != atom.Style:
		style := newStyle(id)
		head.InsertBefore(style, el)
		head.RemoveChild(el)
		el = style
	}
	for c := el.FirstChild; c != nil; c = el.FirstChild {
		el.RemoveChild(c)
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: styleEscaper.Replace(cssText)})
	return nil
}

// EnsureFonts adds a stylesheet link for every https href that has no link
// under key yet.
func (d *Document) EnsureFonts(hrefs []string, key string) error {
	if d == nil {
		return ErrEnvironmentUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.head()
	if head == nil {
		return ErrEnvironmentUnavailable
	}

	for _, href := range hrefs {
		if !strings.HasPrefix(href, "https://") {
			continue
		}
		id := FontLinkID(key, href)
		if childByID(head, id) != nil {
			continue
		}
		link := newElement(atom.Link)
		link.Attr = []html.Attribute{
			{Key: "id", Val: id},
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		}
		head.AppendChild(link)
	}
	return nil
}

// SetBodyHTML replaces the body content with fragment. The fragment is
// inserted as given, so it must already be sanitized.
func (d *Document) SetBodyHTML(fragment string) error {
	if d == nil {
		return ErrEnvironmentUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	body := findElement(d.root, atom.Body)
	if body == nil {
		return ErrEnvironmentUnavailable
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyContext())
	if err != nil {
		return err
	}
	for c := body.FirstChild; c != nil; c = body.FirstChild {
		body.RemoveChild(c)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return nil
}

// SetTitle sets the text of the head <title>, creating it if needed.
func (d *Document) SetTitle(title string) error {
	if d == nil {
		return ErrEnvironmentUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.head()
	if head == nil {
		return ErrEnvironmentUnavailable
	}
	el := findElement(head, atom.Title)
	if el == nil {
		el = newElement(atom.Title)
		head.InsertBefore(el, head.FirstChild)
	}
	for c := el.FirstChild; c != nil; c = el.FirstChild {
		el.RemoveChild(c)
	}
	el.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	return nil
}

// StyleText returns the CSS held by the head style element with the given
// id, as it was passed to UpsertStyle.
func (d *Document) StyleText(id string) (string, bool) {
	if d == nil {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.head()
	if head == nil {
		return "", false
	}
	el := childByID(head, id)
	if el == nil || el.DataAtom != atom.Style {
		return "", false
	}
	var sb strings.Builder
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(c.Data)
	}
	return styleUnescaper.Replace(sb.String()), true
}

// FontLinks returns the hrefs of the font links installed under key, in
// insertion order.
func (d *Document) FontLinks(key string) []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	head := d.head()
	if head == nil {
		return nil
	}
	prefix := "font-" + key + "-"
	var hrefs []string
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Link && strings.HasPrefix(GetAttr(c, "id"), prefix) {
			hrefs = append(hrefs, GetAttr(c, "href"))
		}
	}
	return hrefs
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	if d == nil {
		return ErrEnvironmentUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *Document) head() *html.Node {
	if d.root == nil {
		return nil
	}
	return findElement(d.root, atom.Head)
}

// Style content is raw text, "</" inside it could close the element early.
var (
	styleEscaper   = strings.NewReplacer("</", `<\/`)
	styleUnescaper = strings.NewReplacer(`<\/`, "</")
)

func childByID(parent *html.Node, id string) *html.Node {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && GetAttr(c, "id") == id {
			return c
		}
	}
	return nil
}

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func newStyle(id string) *html.Node {
	el := newElement(atom.Style)
	el.Attr = []html.Attribute{{Key: "id", Val: id}}
	return el
}
