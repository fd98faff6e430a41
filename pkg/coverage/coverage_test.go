package coverage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAnalyze_ComputesCoverageAndGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFrameworkClauses(ctx, []store.FrameworkClause{
		{Framework: "ISO_13485", ClauseID: "4.2.4", Title: "Control of records", Criticality: "high"},
		{Framework: "ISO_13485", ClauseID: "7.3.1", Title: "Design planning", Criticality: "medium"},
		{Framework: "ISO_13485", ClauseID: "8.2.1", Title: "Feedback", Criticality: "low"},
	}))

	require.NoError(t, s.CreateDocument(ctx, section.Document{DocID: "qsp-1", TenantID: "tenant-a", DocKind: section.KindQSP, DisplayName: "qsp"}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1", []section.Section{
		{SectionID: "sec-1", Heading: "Records", Text: "t",
			References: []section.ClauseRef{{Framework: "ISO_13485", ClauseID: "4.2.4"}}},
	}, nil))

	result, err := Analyze(ctx, s, "tenant-a", "ISO_13485")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalClauses)
	assert.Equal(t, 1, result.Covered)
	assert.InDelta(t, 33.33, result.CoveragePct, 0.01)
	require.Len(t, result.UncoveredWithDetails, 2)
	assert.Equal(t, "7.3.1", result.UncoveredWithDetails[0].ClauseID) // medium outranks low
	assert.Equal(t, "8.2.1", result.UncoveredWithDetails[1].ClauseID)
	assert.Empty(t, result.HighPriorityGaps) // the only high clause is covered
}

func TestAnalyze_HighPriorityGapsSubsetOfUncovered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertFrameworkClauses(ctx, []store.FrameworkClause{
		{Framework: "ISO_13485", ClauseID: "4.2.4", Title: "Control of records", Criticality: "high"},
		{Framework: "ISO_13485", ClauseID: "7.3.1", Title: "Design planning", Criticality: "low"},
	}))

	result, err := Analyze(ctx, s, "tenant-a", "ISO_13485")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalClauses)
	assert.Equal(t, 0, result.Covered)
	require.Len(t, result.HighPriorityGaps, 1)
	assert.Equal(t, "4.2.4", result.HighPriorityGaps[0].ClauseID)
	assert.Equal(t, "4.2.4", result.UncoveredWithDetails[0].ClauseID) // high sorts before low
}

func TestAnalyze_ZeroClausesIsVacuouslyFullyCovered(t *testing.T) {
	s := newTestStore(t)
	result, err := Analyze(context.Background(), s, "tenant-a", "UNKNOWN_FRAMEWORK")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalClauses)
	assert.Equal(t, 100.0, result.CoveragePct)
	assert.Empty(t, result.UncoveredWithDetails)
}

func TestAnalyze_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertFrameworkClauses(ctx, []store.FrameworkClause{
		{Framework: "ISO_13485", ClauseID: "4.2.4", Title: "Control of records", Criticality: "high"},
	}))
	require.NoError(t, s.CreateDocument(ctx, section.Document{DocID: "qsp-1", TenantID: "tenant-b", DocKind: section.KindQSP, DisplayName: "qsp"}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-b", "qsp-1", []section.Section{
		{SectionID: "sec-1", Heading: "Records", Text: "t",
			References: []section.ClauseRef{{Framework: "ISO_13485", ClauseID: "4.2.4"}}},
	}, nil))

	result, err := Analyze(ctx, s, "tenant-a", "ISO_13485")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Covered) // tenant-b's citation doesn't count for tenant-a
}
