package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspcompliance/engine/pkg/coverage"
	"github.com/qspcompliance/engine/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRunWithImpact(t *testing.T, s *store.Store, tenantID, runID string, rationale string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, store.AnalysisRun{RunID: runID, TenantID: tenantID, RunType: "standard_diff"}))
	require.NoError(t, s.UpsertImpacts(ctx, []store.ImpactRecord{
		{
			ImpactID:     "impact-1",
			RunID:        runID,
			TenantID:     tenantID,
			ClauseID:     "4.2.4",
			ChangeType:   store.ChangeModified,
			QSPSectionID: "sec-1",
			QSPDoc:       "4.2-4",
			QSPClause:    "2.1",
			Heading:      "Electronic Record Control",
			QSPText:      "preview text",
			QSPTextFull:  "full text",
			Similarity:   0.812,
			Rationale:    rationale,
		},
	}))
	require.NoError(t, s.CompleteRun(ctx, tenantID, runID, 1))
}

func TestBuildRunSummary_PopulatesImpactsAndTotals(t *testing.T) {
	s := newTestStore(t)
	seedRunWithImpact(t, s, "tenant-a", "run-1", "Strong match: review it.")

	summary, err := BuildRunSummary(context.Background(), s, "tenant-a", "run-1", 0.55)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, summary.Status)
	assert.Equal(t, 1, summary.TotalImpactsFound)
	require.Len(t, summary.Impacts, 1)
	assert.Equal(t, "4.2.4", summary.Impacts[0].ClauseID)
	assert.Equal(t, 0.55, summary.Threshold)
}

func TestBuildRunSummary_FailedRunHasHeaderOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, store.AnalysisRun{RunID: "run-1", TenantID: "tenant-a", RunType: "standard_diff"}))
	require.NoError(t, s.FailRun(ctx, "tenant-a", "run-1"))

	summary, err := BuildRunSummary(ctx, s, "tenant-a", "run-1", 0.55)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, summary.Status)
	assert.Empty(t, summary.Impacts)
}

func TestBuildRunSummary_CrossTenantReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	seedRunWithImpact(t, s, "tenant-a", "run-1", "Strong match.")

	_, err := BuildRunSummary(context.Background(), s, "tenant-b", "run-1", 0.55)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExportImpactsJSON_RoundTripsExactFieldSet(t *testing.T) {
	s := newTestStore(t)
	seedRunWithImpact(t, s, "tenant-a", "run-1", "Strong match: review \"Electronic Record Control\".")

	var buf bytes.Buffer
	require.NoError(t, ExportImpactsJSON(context.Background(), s, "tenant-a", "run-1", &buf))

	var views []ImpactRecordView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "4.2.4", views[0].ClauseID)
	assert.Equal(t, "modified", views[0].ChangeType)
	assert.Equal(t, 0.812, views[0].Similarity)
	assert.NotContains(t, buf.String(), `"qsp_section_id"`)
	assert.NotContains(t, buf.String(), `"heading"`)
}

func TestExportImpactsCSV_FixedColumnOrderAndQuoting(t *testing.T) {
	s := newTestStore(t)
	seedRunWithImpact(t, s, "tenant-a", "run-1", "Strong match: review, then update.")

	var buf bytes.Buffer
	require.NoError(t, ExportImpactsCSV(context.Background(), s, "tenant-a", "run-1", &buf))

	reader := csv.NewReader(strings.NewReader(buf.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"clause_id", "change_type", "qsp_doc", "qsp_clause", "heading", "similarity", "rationale"}, records[0])

	row := records[1]
	require.Len(t, row, 7)
	assert.Equal(t, "4.2.4", row[0])
	assert.Equal(t, "modified", row[1])
	assert.Equal(t, "4.2-4", row[2])
	assert.Equal(t, "2.1", row[3])
	assert.Equal(t, "Electronic Record Control", row[4])
	assert.Equal(t, "0.812", row[5])
	assert.Equal(t, "Strong match: review, then update.", row[6])

	// The raw CSV text must quote the rationale field since it contains a comma.
	assert.Contains(t, buf.String(), `"Strong match: review, then update."`)
}

func TestExportImpactsCSV_UnknownRunReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer
	err := ExportImpactsCSV(context.Background(), s, "tenant-a", "missing-run", &buf)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReviewImpact_PersistsDisposition(t *testing.T) {
	s := newTestStore(t)
	seedRunWithImpact(t, s, "tenant-a", "run-1", "Strong match.")

	require.NoError(t, ReviewImpact(context.Background(), s, "tenant-a", "run-1", "impact-1", true, "looks fine as-is"))

	impacts, err := s.ListImpacts(context.Background(), "tenant-a", "run-1")
	require.NoError(t, err)
	require.Len(t, impacts, 1)
	assert.True(t, impacts[0].Reviewed)
	assert.Equal(t, "looks fine as-is", impacts[0].CustomRationale)
}

func TestExportCoverageJSON_IncludesGapDetail(t *testing.T) {
	result := coverage.Result{
		Framework:    "ISO_13485",
		TotalClauses: 2,
		Covered:      1,
		CoveragePct:  50.0,
		UncoveredWithDetails: []store.FrameworkClause{
			{Framework: "ISO_13485", ClauseID: "7.3.1", Title: "Design planning", Criticality: "medium"},
		},
		HighPriorityGaps: nil,
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCoverageJSON(result, &buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ISO_13485", decoded["framework"])
	assert.Equal(t, 50.0, decoded["coverage_pct"])
	gaps, ok := decoded["uncovered_with_details"].([]interface{})
	require.True(t, ok)
	require.Len(t, gaps, 1)
}

func TestExportCoverageCSV_HeaderAndRows(t *testing.T) {
	result := coverage.Result{
		Framework: "ISO_13485",
		UncoveredWithDetails: []store.FrameworkClause{
			{Framework: "ISO_13485", ClauseID: "7.3.1", Title: "Design, planning", Criticality: "medium"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCoverageCSV(result, &buf))

	reader := csv.NewReader(strings.NewReader(buf.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"framework", "clause_id", "title", "criticality", "category"}, records[0])
	assert.Equal(t, "Design, planning", records[1][2])
}
