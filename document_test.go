package mdsafe_test

import (
	"encoding/base64"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/njchilds90/mdsafe"
)

func render(t *testing.T, doc *mdsafe.Document) string {
	t.Helper()
	var sb strings.Builder
	if err := doc.Render(&sb); err != nil {
		t.Fatal(err)
	}
	return sb.String()
}

func TestNewDocument(t *testing.T) {
	got := render(t, mdsafe.NewDocument())
	if got != "<!DOCTYPE html><html><head></head><body></body></html>" {
		t.Errorf("unexpected document: %s", got)
	}
}

func TestUpsertStyle_Idempotent(t *testing.T) {
	doc := mdsafe.NewDocument()
	if err := doc.UpsertStyle("k", ".a { color: red }"); err != nil {
		t.Fatal(err)
	}
	if err := doc.UpsertStyle("k", ".b { color: blue }"); err != nil {
		t.Fatal(err)
	}

	out := render(t, doc)
	if n := strings.Count(out, `id="k"`); n != 1 {
		t.Errorf("expected one style element, found %d: %s", n, out)
	}
	if css, ok := doc.StyleText("k"); !ok || css != ".b { color: blue }" {
		t.Errorf("style = %q, %v", css, ok)
	}
	if strings.Contains(out, ".a {") {
		t.Errorf("old css still present: %s", out)
	}
}

func TestUpsertStyle_SeparateSlots(t *testing.T) {
	doc := mdsafe.NewDocument()
	_ = doc.UpsertStyle("one", "p { margin: 0 }")
	_ = doc.UpsertStyle("two", "p { padding: 0 }")
	if n := strings.Count(render(t, doc), "<style"); n != 2 {
		t.Errorf("expected two style elements, found %d", n)
	}
}

func TestUpsertStyle_CannotCloseElement(t *testing.T) {
	doc := mdsafe.NewDocument()
	if err := doc.UpsertStyle("k", "p{}</style><script>alert(1)</script>"); err != nil {
		t.Fatal(err)
	}
	out := render(t, doc)
	if n := strings.Count(out, "</style>"); n != 1 {
		t.Errorf("style element closed early: %s", out)
	}
}

func TestStyleText_ReturnsStoredCSS(t *testing.T) {
	doc := mdsafe.NewDocument()
	if err := doc.UpsertStyle("k", "a</b"); err != nil {
		t.Fatal(err)
	}
	if css, ok := doc.StyleText("k"); !ok || css != "a</b" {
		t.Errorf("style = %q, %v", css, ok)
	}
	if out := render(t, doc); !strings.Contains(out, `a<\/b`) {
		t.Errorf("style content not escaped in markup: %s", out)
	}
}

func TestUpsertStyle_ReplacesOtherElement(t *testing.T) {
	doc, err := mdsafe.ParseDocument(strings.NewReader(`<html><head><meta id="k" name="x"></head><body></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.UpsertStyle("k", "p { margin: 0 }"); err != nil {
		t.Fatal(err)
	}
	out := render(t, doc)
	if strings.Contains(out, "<meta") {
		t.Errorf("element with the same id should be replaced: %s", out)
	}
	if css, ok := doc.StyleText("k"); !ok || css != "p { margin: 0 }" {
		t.Errorf("style = %q, %v", css, ok)
	}
}

func TestEnsureFonts_Idempotent(t *testing.T) {
	doc := mdsafe.NewDocument()
	hrefs := []string{"https://fonts.example/a.css", "https://fonts.example/b.css"}
	for i := 0; i < 3; i++ {
		if err := doc.EnsureFonts(hrefs, "k"); err != nil {
			t.Fatal(err)
		}
	}
	if got := doc.FontLinks("k"); !reflect.DeepEqual(got, hrefs) {
		t.Errorf("fonts = %v, want %v", got, hrefs)
	}
	if n := strings.Count(render(t, doc), "<link"); n != 2 {
		t.Errorf("expected two links, found %d", n)
	}
}

func TestEnsureFonts_KeysAndSchemes(t *testing.T) {
	doc := mdsafe.NewDocument()
	_ = doc.EnsureFonts([]string{"https://fonts.example/a.css", "http://fonts.example/b.css", "javascript:x"}, "one")
	_ = doc.EnsureFonts([]string{"https://fonts.example/a.css"}, "two")

	if got := doc.FontLinks("one"); !reflect.DeepEqual(got, []string{"https://fonts.example/a.css"}) {
		t.Errorf("fonts(one) = %v", got)
	}
	if got := doc.FontLinks("two"); len(got) != 1 {
		t.Errorf("fonts(two) = %v", got)
	}
	out := render(t, doc)
	if !strings.Contains(out, `id="`+mdsafe.FontLinkID("one", "https://fonts.example/a.css")+`"`) {
		t.Errorf("link id missing: %s", out)
	}
	if strings.Contains(out, "http://") || strings.Contains(out, "javascript") {
		t.Errorf("insecure href injected: %s", out)
	}
}

func TestFontLinkID(t *testing.T) {
	href := "https://fonts.googleapis.com/css?family=Inter"
	want := "font-k-" + base64.RawStdEncoding.EncodeToString([]byte(href))
	if got := mdsafe.FontLinkID("k", href); got != want {
		t.Errorf("FontLinkID = %q, want %q", got, want)
	}
	if strings.Contains(want, "=") {
		t.Errorf("id must not carry padding: %q", want)
	}
}

func TestDocument_Unavailable(t *testing.T) {
	for name, doc := range map[string]*mdsafe.Document{
		"nil":  nil,
		"zero": {},
	} {
		t.Run(name, func(t *testing.T) {
			if err := doc.UpsertStyle("k", "p{}"); !errors.Is(err, mdsafe.ErrEnvironmentUnavailable) {
				t.Errorf("UpsertStyle: %v", err)
			}
			if err := doc.EnsureFonts([]string{"https://a.example/f.css"}, "k"); !errors.Is(err, mdsafe.ErrEnvironmentUnavailable) {
				t.Errorf("EnsureFonts: %v", err)
			}
			if err := doc.SetTitle("t"); !errors.Is(err, mdsafe.ErrEnvironmentUnavailable) {
				t.Errorf("SetTitle: %v", err)
			}
			if _, ok := doc.StyleText("k"); ok {
				t.Error("StyleText reported a style")
			}
			if links := doc.FontLinks("k"); len(links) != 0 {
				t.Errorf("FontLinks = %v", links)
			}
		})
	}
}

func TestSetBodyHTMLAndTitle(t *testing.T) {
	doc, err := mdsafe.ParseDocument(strings.NewReader(`<html><head><title>old</title></head><body><p>old</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.SetTitle("Hi & bye"); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetBodyHTML("<h1>New</h1><p>body</p>"); err != nil {
		t.Fatal(err)
	}
	want := "<html><head><title>Hi &amp; bye</title></head><body><h1>New</h1><p>body</p></body></html>"
	if got := render(t, doc); got != want {
		t.Errorf("unexpected document:\n got %s\nwant %s", got, want)
	}
}

func TestDocument_Concurrent(t *testing.T) {
	doc := mdsafe.NewDocument()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = doc.UpsertStyle("k", "p { margin: 0 }")
			_ = doc.EnsureFonts([]string{"https://fonts.example/a.css"}, "k")
		}()
	}
	wg.Wait()

	out := render(t, doc)
	if strings.Count(out, "<style") != 1 || strings.Count(out, "<link") != 1 {
		t.Errorf("duplicate elements after concurrent writes: %s", out)
	}
}
