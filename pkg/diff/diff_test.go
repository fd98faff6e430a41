package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_ClassifiesAddedModifiedDeleted(t *testing.T) {
	old := map[string]string{
		"4.2.4": "Records shall be retained.",
		"7.5.1": "Production shall be controlled.",
	}
	new := map[string]string{
		"4.2.4": "Records shall be retained electronically.",
		"9.1.1": "Monitoring and measurement shall be planned.",
	}

	deltas := Diff(old, new, "ISO_13485")
	require.Len(t, deltas, 3)

	byClause := map[string]Delta{}
	for _, d := range deltas {
		byClause[d.ClauseID] = d
	}

	assert.Equal(t, Modified, byClause["4.2.4"].ChangeType)
	assert.Equal(t, Deleted, byClause["7.5.1"].ChangeType)
	assert.Equal(t, Added, byClause["9.1.1"].ChangeType)
}

func TestDiff_OrderingIsDottedNumericThenLexicographic(t *testing.T) {
	old := map[string]string{}
	new := map[string]string{
		"10.1": "a", "7.5": "b", "7.3.1": "c", "7.3": "d", "Annex-B": "e", "Annex-A": "f",
	}

	deltas := Diff(old, new, "ISO_13485")
	var order []string
	for _, d := range deltas {
		order = append(order, d.ClauseID)
	}
	assert.Equal(t, []string{"7.3", "7.3.1", "7.5", "10.1", "Annex-A", "Annex-B"}, order)
}

func TestDiff_IdenticalAfterNormalizationExcludedAsNoOp(t *testing.T) {
	old := map[string]string{"4.2.4": "Records  shall be   retained."}
	new := map[string]string{"4.2.4": "Records shall be retained."}

	deltas := Diff(old, new, "ISO_13485")
	assert.Empty(t, deltas)
}

func TestDiff_Symmetry(t *testing.T) {
	a := map[string]string{"4.2.4": "old text", "7.5.1": "stays the same"}
	b := map[string]string{"4.2.4": "new text", "9.1.1": "brand new clause", "7.5.1": "stays the same"}

	forward := Diff(a, b, "ISO_13485")
	backward := Diff(b, a, "ISO_13485")

	forwardByClause := map[string]ChangeType{}
	for _, d := range forward {
		forwardByClause[d.ClauseID] = d.ChangeType
	}
	backwardByClause := map[string]ChangeType{}
	for _, d := range backward {
		backwardByClause[d.ClauseID] = d.ChangeType
	}

	assert.Equal(t, Modified, forwardByClause["4.2.4"])
	assert.Equal(t, Modified, backwardByClause["4.2.4"]) // modified role preserved

	assert.Equal(t, Added, forwardByClause["9.1.1"])
	assert.Equal(t, Deleted, backwardByClause["9.1.1"]) // added/deleted roles swap

	_, changedInForward := forwardByClause["7.5.1"]
	_, changedInBackward := backwardByClause["7.5.1"]
	assert.False(t, changedInForward)
	assert.False(t, changedInBackward)
}

func TestDelta_ChangeTextIsNonEmptySide(t *testing.T) {
	added := Delta{ChangeType: Added, NewText: "new"}
	deleted := Delta{ChangeType: Deleted, OldText: "old"}
	modified := Delta{ChangeType: Modified, OldText: "old", NewText: "new"}

	assert.Equal(t, "new", added.ChangeText())
	assert.Equal(t, "old", deleted.ChangeText())
	assert.Equal(t, "new", modified.ChangeText())
}

func TestCompareClauseIDs_NonNumericFallsBackToLexicographic(t *testing.T) {
	assert.Less(t, CompareClauseIDs("Annex-A", "Annex-B"), 0)
	assert.Equal(t, 0, CompareClauseIDs("Annex-A", "Annex-A"))
	assert.Less(t, CompareClauseIDs("7.3", "7.5"), 0) // both numeric: compared segment-by-segment
}
