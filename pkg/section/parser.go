package section

import (
	"regexp"
	"strings"

	"github.com/qspcompliance/engine/pkg/normalize"
)

// headerPattern recognizes one style of clause-number line. Patterns are
// tried in the order returned by defaultHeaderPatterns; the first match
// wins and ties never occur because patterns are tested in sequence
// (spec.md §4.2 step 1).
type headerPattern struct {
	name string
	re   *regexp.Regexp
}

// defaultHeaderPatterns returns the layered regex set ordered by
// specificity: numeric dotted, letter-dot, roman numeral, bracketed
// alphabet.
func defaultHeaderPatterns() []headerPattern {
	return []headerPattern{
		{"numeric-dotted", regexp.MustCompile(`^(\d+(?:\.\d+)*)\s*[.)]?\s+(.*)$`)},
		{"letter-dot", regexp.MustCompile(`^([A-Z])\.\s+(.*)$`)},
		{"roman", regexp.MustCompile(`^([IVXLCDM]+)\.\s+(.*)$`)},
		{"bracketed-alpha", regexp.MustCompile(`^\(([a-z])\)\s*(.*)$`)},
	}
}

var romanValue = map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

func looksLikeRoman(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if _, ok := romanValue[r]; !ok {
			return false
		}
	}
	return true
}

// ReferencePattern matches a regulatory clause citation embedded in QSP
// text, e.g. "21 CFR 11" or "ISO 13485:4.2.4", and reports which framework
// and clause it names.
type ReferencePattern struct {
	Framework string
	re        *regexp.Regexp
}

// DefaultReferencePatterns returns the regulatory-citation patterns used by
// Parse to populate Section.References, adapted from the original system's
// seed list of regulatory_reference_patterns (see original_source/backend).
func DefaultReferencePatterns() []ReferencePattern {
	return []ReferencePattern{
		{Framework: "FDA_21CFR820", re: regexp.MustCompile(`21\s*CFR\s*(?:Part\s*)?820(?:\.(\d+))?`)},
		{Framework: "FDA_21CFR11", re: regexp.MustCompile(`21\s*CFR\s*(?:Part\s*)?11(?:\.(\d+))?`)},
		{Framework: "ISO_13485", re: regexp.MustCompile(`ISO\s*13485(?::(\d{4}))?(?:[,:\s]*(?:clause\s*)?(\d+(?:\.\d+)*))?`)},
		{Framework: "MDR_2017_745", re: regexp.MustCompile(`MDR\s*(?:\(EU\)\s*)?2017/745(?:[,\s]*(?:Art(?:icle)?\.?\s*)?(\d+(?:\.\d+)*))?`)},
	}
}

// crossRefPattern matches references to other internal documents: forms,
// work instructions, and other QSPs (spec.md §4.2 item 4).
var crossRefPattern = regexp.MustCompile(`\b((?:QSP|WI|FORM|F)[\s-]?\d+(?:[.\-]\d+)*)\b`)

// Hints configures document-kind-specific parsing behavior.
type Hints struct {
	// DisplayName is used as the heading when the whole document falls
	// back to a single section (no headers recognized).
	DisplayName string
	// ReferencePatterns overrides DefaultReferencePatterns; nil selects
	// the default set. Ignored for REGULATORY documents.
	ReferencePatterns []ReferencePattern
}

// Parse turns a document's normalized text into an ordered list of
// Section records. It never fails on content: malformed input degrades to
// the single-section fallback (spec.md §4.2 step 5).
func Parse(rawText string, kind DocKind, hints Hints) []Section {
	// Lines are normalized one at a time: normalize.Text joins single
	// newlines into spaces, which would merge header lines with their bodies.
	lines := strings.Split(rawText, "\n")
	patterns := defaultHeaderPatterns()

	type rawSection struct {
		clauseID string
		heading  string
		lines    []string
	}

	var sections []rawSection
	var current *rawSection
	sawHeader := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(normalize.Text(line))
		if trimmed == "" {
			continue
		}

		if clauseID, heading, matched := matchHeader(trimmed, patterns); matched {
			sawHeader = true
			sections = append(sections, rawSection{})
			current = &sections[len(sections)-1]
			current.clauseID = clauseID
			current.heading = heading
			continue
		}

		if current == nil {
			sections = append(sections, rawSection{})
			current = &sections[len(sections)-1]
		}
		current.lines = append(current.lines, trimmed)
	}

	if !sawHeader {
		return []Section{singleSection(hints.DisplayName, strings.TrimSpace(normalize.Text(rawText)), kind, hints)}
	}

	refPatterns := hints.ReferencePatterns
	if refPatterns == nil {
		refPatterns = DefaultReferencePatterns()
	}

	result := make([]Section, 0, len(sections))
	for _, rs := range sections {
		body := strings.Join(rs.lines, " ")
		sec := Section{
			ClauseID:    rs.clauseID,
			SectionPath: rs.clauseID,
			Heading:     rs.heading,
			Text:        body,
			Depth:       depthOf(rs.clauseID),
		}
		if kind == KindQSP {
			sec.CrossRefs = extractCrossRefs(body)
			sec.References = extractReferences(body, refPatterns)
		}
		result = append(result, sec)
	}
	return result
}

func singleSection(heading, body string, kind DocKind, hints Hints) Section {
	sec := Section{
		Heading: heading,
		Text:    body,
		Depth:   1,
	}
	if kind == KindQSP {
		refPatterns := hints.ReferencePatterns
		if refPatterns == nil {
			refPatterns = DefaultReferencePatterns()
		}
		sec.CrossRefs = extractCrossRefs(body)
		sec.References = extractReferences(body, refPatterns)
	}
	return sec
}

// matchHeader tries each pattern in order and returns the clause id and
// heading text of the first match. The roman-numeral pattern is skipped
// when the candidate token isn't composed purely of roman digits, since
// the regex character class alone would also accept plain uppercase runs
// like "MIX.".
func matchHeader(line string, patterns []headerPattern) (clauseID, heading string, ok bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if p.name == "roman" && !looksLikeRoman(m[1]) {
			continue
		}
		return m[1], strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

func depthOf(clauseID string) int {
	if clauseID == "" {
		return 1
	}
	if !strings.Contains(clauseID, ".") {
		return 1
	}
	return len(strings.Split(clauseID, "."))
}

func extractCrossRefs(text string) []string {
	matches := crossRefPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func extractReferences(text string, patterns []ReferencePattern) []ClauseRef {
	var refs []ClauseRef
	seen := make(map[ClauseRef]bool)
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			// The clause number is always the last group; earlier groups
			// (e.g. the ISO edition year) are not clause numbers.
			clauseID := m[len(m)-1]
			ref := ClauseRef{Framework: p.Framework, ClauseID: clauseID}
			if seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
