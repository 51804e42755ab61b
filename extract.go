package mdsafe

import (
	"regexp"
	"strings"
)

var (
	styleBlockRe = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)

	// @import url(x); @import url("x") screen; @import "x";
	// A media list is only taken when a ";" ends it before any block.
	importRe = regexp.MustCompile(`(?i)@import\s*(?:url\(\s*["']?([^"')]*)["']?\s*\)|["']([^"']*)["'])(?:[^;{}@]*;)?`)
)

// ExtractStyleBlocks removes every complete <style>...</style> region from
// markdown and returns the remaining text together with the inner CSS of
// the removed blocks, joined by newlines in document order. A <style> tag
// without a closing tag is left in place.
func ExtractStyleBlocks(markdown string) (withoutStyles, rawCSS string) {
	matches := styleBlockRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return markdown, ""
	}

	var sb strings.Builder
	sb.Grow(len(markdown))
	blocks := make([]string, 0, len(matches))
	last := 0
	for _, m := range matches {
		sb.WriteString(markdown[last:m[0]])
		blocks = append(blocks, markdown[m[2]:m[3]])
		last = m[1]
	}
	sb.WriteString(markdown[last:])
	return sb.String(), strings.Join(blocks, "\n")
}

// ExtractFontImports strips all @import directives from cssText. URLs that
// start with https:// are returned in the order they were found; all other
// imports are dropped.
func ExtractFontImports(cssText string) (withoutImports string, fontHrefs []string) {
	fontHrefs = []string{}
	matches := importRe.FindAllStringSubmatchIndex(cssText, -1)
	if len(matches) == 0 {
		return cssText, fontHrefs
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(cssText[last:m[0]])
		last = m[1]

		var href string
		switch {
		case m[2] >= 0:
			href = cssText[m[2]:m[3]]
		case m[4] >= 0:
			href = cssText[m[4]:m[5]]
		}
		if href = strings.TrimSpace(href); strings.HasPrefix(href, "https://") {
			fontHrefs = append(fontHrefs, href)
		}
	}
	sb.WriteString(cssText[last:])
	return sb.String(), fontHrefs
}
