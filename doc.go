// Package mdsafe renders creator-authored form content (Markdown with
// embedded HTML and CSS) into markup that is safe to show to any visitor.
//
// # Overview
//
// [Renderer.RenderMarkdown] takes untrusted Markdown and returns a
// [Result] with three parts:
//   - HTML: the Markdown converted by goldmark (raw HTML passed through)
//     and then cleaned by a [Sanitizer] compiled from [FormPolicy]
//   - CSSText: the content of every <style> block, filtered rule by rule
//     with [FilterCSSText]
//   - FontHrefs: https stylesheet URLs taken from @import directives
//
// [Renderer.SanitizeFragment] applies the same HTML policy to short fields
// such as titles and question text, without Markdown conversion.
//
// # CSS filtering
//
// Only properties on a fixed allow-list survive (see [AllowedProperties]).
// A value may reference a resource only through a leading url() pointing to
// https; values with other url() targets, CSS escapes, or functions that
// load images by other means are dropped. Inline style attributes go
// through [FilterDeclarations] via an attribute hook on the policy.
//
// # Injection
//
// A [Document] holds the page head. [Document.UpsertStyle] keeps one
// <style> per id and [Document.EnsureFonts] keeps one <link> per
// (key, href) pair, so rendering the same content repeatedly never
// duplicates nodes.
//
// # Errors
//
// Rendering never fails on bad input: fragments that cannot be handled are
// dropped. Internal failures are logged and produce empty output, never
// unsanitized output.
//
// # Thread Safety
//
// A Renderer and a Sanitizer are immutable and safe for concurrent use.
// Document serializes access to its tree. Policy structs should not be
// mutated after they are compiled.
//
// # Example
//
//	r := mdsafe.New(mdsafe.WithLogger(log))
//	res := r.RenderMarkdown(form.Markdown)
//	_ = doc.UpsertStyle("form-style", res.CSSText)
//	_ = doc.EnsureFonts(res.FontHrefs, form.ID)
package mdsafe
