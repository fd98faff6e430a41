// Package standardid implements the Standard Identifier (C3): extracting a
// regulatory document's {series, part?, year} identity from its first page
// and classifying a pair of identities as a diffable version pair, a
// cross-referenced companion part, or incompatible.
//
// Identify and Classify are pure functions with no configuration
// dependency — per spec.md §4.3 the gate "does not by itself reject the
// request at the transport boundary"; whether a caller proceeds on
// CrossReference or Incompatible is decided by the caller (see
// internal/config.Config.StandardGateEnforced and cmd/qspctl).
package standardid

import (
	"regexp"
	"strconv"
)

// Identity is the {series, part?, year} tuple described in spec.md §3.
type Identity struct {
	Series int
	Part   *int
	Year   int
}

// Equal reports whether two identities denote the same standard version:
// all three fields equal.
func (a Identity) Equal(b Identity) bool {
	if a.Series != b.Series || a.Year != b.Year {
		return false
	}
	return partsEqual(a.Part, b.Part)
}

func partsEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// pattern pairs a first-page regex with a function that builds an Identity
// from its submatches. Patterns are tried in the order given by patterns();
// the first match wins.
type pattern struct {
	re    *regexp.Regexp
	build func(m []string) Identity
}

func patterns() []pattern {
	return []pattern{
		{
			re: regexp.MustCompile(`ISO\s+(\d+)-(\d+)\s*:\s*(\d{4})`),
			build: func(m []string) Identity {
				part := atoi(m[2])
				return Identity{Series: atoi(m[1]), Part: &part, Year: atoi(m[3])}
			},
		},
		{
			re: regexp.MustCompile(`ISO\s+(\d+)-(\d+)\s*\((\d{4})\)`),
			build: func(m []string) Identity {
				part := atoi(m[2])
				return Identity{Series: atoi(m[1]), Part: &part, Year: atoi(m[3])}
			},
		},
		{
			re: regexp.MustCompile(`ISO\s+(\d+)\s*:\s*(\d{4})`),
			build: func(m []string) Identity {
				return Identity{Series: atoi(m[1]), Part: nil, Year: atoi(m[2])}
			},
		},
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

// Identify extracts a standard identity from a regulatory document's
// first-page text. It returns (Identity{}, false) when no pattern matches.
func Identify(firstPageText string) (Identity, bool) {
	for _, p := range patterns() {
		if m := p.re.FindStringSubmatch(firstPageText); m != nil {
			return p.build(m), true
		}
	}
	return Identity{}, false
}

// Mode classifies a pair of documents for diffability.
type Mode string

const (
	// ModeVersionDiff means the two documents are different years of the
	// same standard and part — diffable.
	ModeVersionDiff Mode = "VERSION_DIFF"
	// ModeCrossReference means the two documents share a series but name
	// different parts — companion documents, not diffable against each
	// other.
	ModeCrossReference Mode = "CROSS_REFERENCE"
	// ModeIncompatible means the documents cannot be meaningfully
	// compared at all.
	ModeIncompatible Mode = "INCOMPATIBLE"
)

// Decision is the structured result of Classify: a Mode plus a
// human-readable reason and guidance for the caller (spec.md §4.3).
type Decision struct {
	Mode     Mode
	Reason   string
	Guidance string
}

// Classify decides the relationship between two (possibly absent)
// standard identities, per the decision table in spec.md §4.3.
func Classify(a, b *Identity) Decision {
	if a == nil || b == nil {
		return Decision{
			Mode:     ModeIncompatible,
			Reason:   "one or both documents have no recognizable standard identity",
			Guidance: "re-upload with a readable first page, or ingest as a plain QSP/REGULATORY document without diffing",
		}
	}

	if a.Equal(*b) {
		return Decision{
			Mode:     ModeIncompatible,
			Reason:   "both documents identify as the same standard version",
			Guidance: "select two different versions or companion parts to compare",
		}
	}

	if a.Series != b.Series {
		return Decision{
			Mode:     ModeIncompatible,
			Reason:   "documents belong to different standard series",
			Guidance: "diffing is only meaningful within the same series",
		}
	}

	if partsEqual(a.Part, b.Part) {
		return Decision{
			Mode:     ModeVersionDiff,
			Reason:   "same series and part, different year",
			Guidance: "proceed with clause-level diff and change-impact analysis",
		}
	}

	return Decision{
		Mode:     ModeCrossReference,
		Reason:   "same series, different parts",
		Guidance: "these are companion documents; review cross-references instead of diffing",
	}
}
