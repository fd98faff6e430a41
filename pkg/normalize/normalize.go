// Package normalize implements the Text Normalizer (C1): whitespace
// collapsing, control-character stripping, and the single chokepoint for
// embedding-time truncation. Storage and diffing never truncate — only
// EmbedTruncate does, and only on the path to the embedding client.
package normalize

import (
	"strings"
	"unicode"
)

// DefaultEmbedMaxChars is used by EmbedTruncate when the caller passes 0,
// matching spec.md §4.1's default.
const DefaultEmbedMaxChars = 16000

// Text collapses runs of whitespace to single spaces, preserves paragraph
// breaks as "\n\n", and strips C0/C1 control characters other than '\t' and
// '\n'. It never truncates.
func Text(s string) string {
	var stripped strings.Builder
	stripped.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' {
			stripped.WriteRune(r)
			continue
		}
		if isControl(r) {
			continue
		}
		stripped.WriteRune(r)
	}

	paragraphs := splitParagraphs(stripped.String())
	for i, p := range paragraphs {
		paragraphs[i] = collapseWhitespace(p)
	}
	return strings.Join(nonEmpty(paragraphs), "\n\n")
}

// EmbedTruncate truncates s to at most maxChars runes. It is the only
// truncation point in the system and must be applied only immediately
// before a string is handed to the embedding client (C4), never before
// storage or diffing. maxChars <= 0 selects DefaultEmbedMaxChars.
func EmbedTruncate(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultEmbedMaxChars
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

func isControl(r rune) bool {
	// C0 controls (0x00-0x1F) and the DEL/C1 range (0x7F-0x9F), excluding
	// the two whitespace controls callers explicitly preserve.
	if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
		return true
	}
	return false
}

func splitParagraphs(s string) []string {
	// A paragraph break is any run of two or more newlines, with optional
	// surrounding horizontal whitespace on the blank line(s).
	var paragraphs []string
	var current strings.Builder
	lines := strings.Split(s, "\n")
	blankRun := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankRun++
			continue
		}
		if blankRun > 0 && current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
		blankRun = 0
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return paragraphs
}

func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
