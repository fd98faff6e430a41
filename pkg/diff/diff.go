// Package diff implements the Clause Diff (C7): classifying the change
// between two clause-to-text mappings of a regulatory document, in
// deterministic clause_id order. It has no donor analog — built fresh in
// the donor's small-package-with-doc.go style (see pkg/standardid for the
// same shape: one file, pure functions, no receiver state).
package diff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/qspcompliance/engine/pkg/normalize"
)

// ChangeType classifies a Delta, per spec.md §3.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Deleted  ChangeType = "deleted"
)

// Delta is one classified change between two versions of a regulatory
// document at clause granularity, per spec.md §3.
type Delta struct {
	ClauseID   string
	ChangeType ChangeType
	Framework  string
	OldText    string // empty for added
	NewText    string // empty for deleted
}

// ChangeText is the non-empty side (new_text for added/modified, old_text
// for deleted), the text downstream components embed for retrieval.
func (d Delta) ChangeText() string {
	if d.ChangeType == Deleted {
		return d.OldText
	}
	return d.NewText
}

// Diff computes the ordered list of Deltas between old (A) and new (B)
// clause-to-text mappings, per spec.md §4.7. A clause present in both whose
// texts are identical after normalization is excluded entirely, not
// emitted as a no-op modified delta (spec.md §8: "Identical old/new for a
// modified delta: reclassified internally to no-op, excluded from
// results").
func Diff(old, new map[string]string, framework string) []Delta {
	deltas := make([]Delta, 0, len(old)+len(new))

	for clauseID, newText := range new {
		oldText, existedBefore := old[clauseID]
		if !existedBefore {
			deltas = append(deltas, Delta{ClauseID: clauseID, ChangeType: Added, Framework: framework, NewText: newText})
			continue
		}
		if normalize.Text(oldText) == normalize.Text(newText) {
			continue
		}
		deltas = append(deltas, Delta{ClauseID: clauseID, ChangeType: Modified, Framework: framework, OldText: oldText, NewText: newText})
	}
	for clauseID, oldText := range old {
		if _, stillPresent := new[clauseID]; stillPresent {
			continue
		}
		deltas = append(deltas, Delta{ClauseID: clauseID, ChangeType: Deleted, Framework: framework, OldText: oldText})
	}

	sort.Slice(deltas, func(i, j int) bool {
		return CompareClauseIDs(deltas[i].ClauseID, deltas[j].ClauseID) < 0
	})
	return deltas
}

// CompareClauseIDs orders clause ids dotted-numeric first, falling back to
// lexicographic comparison once either id contains a non-numeric
// component, per spec.md §4.7: `"7.3"` < `"7.3.1"` < `"7.5"` < `"10.1"`,
// then alphabetic for non-numeric ids.
func CompareClauseIDs(a, b string) int {
	as, aNumeric := splitNumericSegments(a)
	bs, bNumeric := splitNumericSegments(b)

	if aNumeric && bNumeric {
		for i := 0; i < len(as) && i < len(bs); i++ {
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
		return len(as) - len(bs)
	}

	return strings.Compare(a, b)
}

// splitNumericSegments splits a clause id on '.' and parses each segment
// as an integer. It reports false if any segment fails to parse,
// signalling the caller should fall back to lexicographic comparison.
func splitNumericSegments(id string) ([]int, bool) {
	parts := strings.Split(id, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
