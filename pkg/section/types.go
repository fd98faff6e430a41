// Package section implements the Section Parser (C2): turning a document's
// raw text into an ordered list of clause-addressable Section records, plus
// the closed-schema domain types shared by every downstream component.
package section

import "time"

// DocKind distinguishes a tenant's internal procedure from an external
// regulatory standard, per spec.md §3.
type DocKind string

const (
	KindQSP        DocKind = "QSP"
	KindRegulatory DocKind = "REGULATORY"
)

// Document is immutable after ingest except for soft-delete (DeletedAt).
type Document struct {
	DocID            string
	TenantID         string
	DocKind          DocKind
	Framework        string // regulatory framework tag, e.g. "ISO_13485"; empty for QSP unless tagged
	StandardIdentity *StandardIdentity
	DisplayName      string
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// StandardIdentity is the {series, part?, year} tuple extracted from a
// regulatory document's first page by the Standard Identifier (C3).
type StandardIdentity struct {
	Series int
	Part   *int
	Year   int
}

// ClauseRef is a cross-reference extracted from a QSP section's text to a
// clause of some regulatory framework, used by the Coverage Analyzer (C9).
type ClauseRef struct {
	Framework string
	ClauseID  string
}

// Section is one clause-addressable unit of a decomposed document.
// text is stored verbatim after normalization and is never truncated.
type Section struct {
	SectionID   string
	DocID       string
	TenantID    string
	ClauseID    string // empty when the parser recognized no clause number
	SectionPath string // e.g. "7.3.2"; Parse sets it to ClauseID, so it is empty for unnumbered sections
	Heading     string
	Text        string
	Page        *int
	Depth       int
	CrossRefs   []string    // QSP cross-references to other document IDs (forms, work instructions, other QSPs)
	References  []ClauseRef // regulatory clause citations found in the text, used by the Coverage Analyzer
	CreatedAt   time.Time
}

// HasClauseID reports whether the parser recognized a clause number for
// this section.
func (s Section) HasClauseID() bool {
	return s.ClauseID != ""
}
