package impact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspcompliance/engine/internal/config"
	"github.com/qspcompliance/engine/pkg/diff"
	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/store"
)

type fakeEmbedder struct {
	vector map[string][]float32
	err    error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vector[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDetectImpacts_EmptyQSPCorpusCompletesWithGuidance(t *testing.T) {
	s := newTestStore(t)
	result, err := DetectImpacts(context.Background(), s, fakeEmbedder{}, config.Default(), "tenant-a",
		[]diff.Delta{{ClauseID: "4.2.4", ChangeType: diff.Modified, NewText: "x"}}, 5)

	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	assert.Equal(t, 0, result.TotalImpacts)
	assert.NotEmpty(t, result.GuidanceMessage)
}

func TestDetectImpacts_FindsMatchingQSPSection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, section.Document{
		DocID: "qsp-1", TenantID: "tenant-a", DocKind: section.KindQSP, DisplayName: "7.3-3 QSP 7.3-3 R9 Electronic Records",
	}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1",
		[]section.Section{{SectionID: "sec-1", ClauseID: "4.2.4", Heading: "Electronic Record Control", Text: "Electronic signatures per 21 CFR 11."}},
		map[string][]float32{"sec-1": {1, 0}}))

	cfg := config.Default()
	result, err := DetectImpacts(ctx, s, fakeEmbedder{}, cfg, "tenant-a",
		[]diff.Delta{{ClauseID: "4.2.4", ChangeType: diff.Modified, OldText: "old", NewText: "Electronic records retention extended to 10 years"}}, 5)

	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	require.Len(t, result.Impacts, 1)

	rec := result.Impacts[0]
	assert.Equal(t, "4.2.4", rec.QSPClause)
	assert.GreaterOrEqual(t, rec.Similarity, 0.55)
	assert.Equal(t, "7.3-3", rec.QSPDoc)
	assert.Contains(t, rec.Rationale, "Electronic Record Control")
	assert.True(t,
		strings.Contains(rec.Rationale, "Strong") || strings.Contains(rec.Rationale, "Moderate") || strings.Contains(rec.Rationale, "Potential"))
}

func TestDetectImpacts_EmptyChangeTextSkippedNotError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, section.Document{DocID: "qsp-1", TenantID: "tenant-a", DocKind: section.KindQSP, DisplayName: "qsp"}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1",
		[]section.Section{{SectionID: "sec-1", ClauseID: "4.2.4", Heading: "h", Text: "t"}},
		map[string][]float32{"sec-1": {1, 0}}))

	result, err := DetectImpacts(ctx, s, fakeEmbedder{}, config.Default(), "tenant-a",
		[]diff.Delta{{ClauseID: "9.9.9", ChangeType: diff.Deleted, OldText: "   "}}, 5)

	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, result.Status)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "empty_change_text", result.Skipped[0].Reason)
	assert.Empty(t, result.Impacts)
}

func TestDetectImpacts_EmbeddingFailureMarksRunPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, section.Document{DocID: "qsp-1", TenantID: "tenant-a", DocKind: section.KindQSP, DisplayName: "qsp"}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1",
		[]section.Section{{SectionID: "sec-1", ClauseID: "4.2.4", Heading: "h", Text: "t"}},
		map[string][]float32{"sec-1": {1, 0}}))

	result, err := DetectImpacts(ctx, s, fakeEmbedder{err: errors.New("provider down")}, config.Default(), "tenant-a",
		[]diff.Delta{{ClauseID: "4.2.4", ChangeType: diff.Modified, OldText: "old", NewText: "new"}}, 5)

	require.NoError(t, err)
	assert.Equal(t, store.RunPartial, result.Status)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "embedding_unavailable", result.Skipped[0].Reason)
}

func TestDetectImpacts_IdempotentOnRerun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, section.Document{DocID: "qsp-1", TenantID: "tenant-a", DocKind: section.KindQSP, DisplayName: "qsp"}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1",
		[]section.Section{{SectionID: "sec-1", ClauseID: "4.2.4", Heading: "h", Text: "t"}},
		map[string][]float32{"sec-1": {1, 0}}))

	deltas := []diff.Delta{{ClauseID: "4.2.4", ChangeType: diff.Modified, OldText: "old", NewText: "new"}}
	cfg := config.Default()

	first, err := DetectImpacts(ctx, s, fakeEmbedder{}, cfg, "tenant-a", deltas, 5)
	require.NoError(t, err)
	second, err := DetectImpacts(ctx, s, fakeEmbedder{}, cfg, "tenant-a", deltas, 5)
	require.NoError(t, err)

	assert.Equal(t, len(first.Impacts), len(second.Impacts))
	assert.Equal(t, first.Impacts[0].ClauseID, second.Impacts[0].ClauseID)
	assert.Equal(t, first.Impacts[0].QSPDoc, second.Impacts[0].QSPDoc)
}

func TestExtractQSPDoc_FallsBackToFirstToken(t *testing.T) {
	assert.Equal(t, "7.3-3", extractQSPDoc("7.3-3 QSP 7.3-3 R9 Electronic Records"))
	assert.Equal(t, "Untitled", extractQSPDoc("Untitled procedure document"))
}

func TestPreview_BoundsLongText(t *testing.T) {
	long := make([]byte, previewChars+50)
	for i := range long {
		long[i] = 'a'
	}
	out := preview(string(long))
	assert.Len(t, out, previewChars)
}
