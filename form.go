package mdsafe

import (
	"github.com/gosimple/slug"
)

// FormStyleID is the id of the single style slot a form page uses.
// Rendering another form into the same page overwrites it.
const FormStyleID = "form-custom-style"

// Form is the creator-authored content of a form as stored. Nullable
// columns are pointers.
type Form struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	MarkdownContent *string    `json:"markdown_content"`
	Questions       []Question `json:"questions"`
}

// Question is a single form question.
type Question struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Options     []Choice `json:"options,omitempty"`
}

// Choice is one option of a choice question.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RenderedForm is a Form with every creator-controlled field made safe.
type RenderedForm struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	PlainTitle  string             `json:"plainTitle"`
	Description string             `json:"description"`
	Content     Result             `json:"content"`
	Questions   []RenderedQuestion `json:"questions"`
	StyleID     string             `json:"styleId"`
	FontKey     string             `json:"fontKey"`
}

// RenderedQuestion mirrors Question. Choice values are left alone, they
// are submitted back and never rendered as HTML.
type RenderedQuestion struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Options     []Choice `json:"options,omitempty"`
}

// RenderForm sanitizes every field of f.
func (r *Renderer) RenderForm(f Form) RenderedForm {
	rf := RenderedForm{
		ID:          f.ID,
		Title:       r.SanitizeFragment(f.Title),
		PlainTitle:  r.PlainText(f.Title),
		Description: r.SanitizeFragment(deref(f.Description)),
		Content:     r.RenderMarkdown(deref(f.MarkdownContent)),
		Questions:   make([]RenderedQuestion, 0, len(f.Questions)),
		StyleID:     FormStyleID,
		FontKey:     FontKey(f.ID),
	}
	for _, q := range f.Questions {
		rq := RenderedQuestion{
			ID:          q.ID,
			Type:        q.Type,
			Title:       r.SanitizeFragment(q.Title),
			Description: r.SanitizeFragment(deref(q.Description)),
			Required:    q.Required,
		}
		for _, o := range q.Options {
			rq.Options = append(rq.Options, Choice{Label: r.SanitizeFragment(o.Label), Value: o.Value})
		}
		rf.Questions = append(rf.Questions, rq)
	}
	return rf
}

// Apply installs the form stylesheet and fonts into doc. The style slot is
// always written, so a form without CSS clears the previous form's styles.
func (rf RenderedForm) Apply(doc *Document) error {
	if err := doc.UpsertStyle(rf.StyleID, rf.Content.CSSText); err != nil {
		return err
	}
	return doc.EnsureFonts(rf.Content.FontHrefs, rf.FontKey)
}

// FontKey derives an id-safe font key from a form identifier.
func FontKey(formID string) string {
	if key := slug.Make(formID); key != "" {
		return key
	}
	return "form"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
