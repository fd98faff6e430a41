package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qspcompliance/engine/pkg/section"
)

func TestVectorSearch_FiltersByDocKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "qsp-1", section.KindQSP)
	seedDoc(t, s, "tenant-a", "reg-1", section.KindRegulatory)

	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "qsp-1",
		[]section.Section{{SectionID: "sec-qsp", Text: "qsp"}}, map[string][]float32{"sec-qsp": {1, 0}}))
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "reg-1",
		[]section.Section{{SectionID: "sec-reg", Text: "reg"}}, map[string][]float32{"sec-reg": {1, 0}}))

	matches, err := s.VectorSearch(ctx, "tenant-a", []float32{1, 0}, section.KindQSP, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sec-qsp", matches[0].SectionID)
}

func TestVectorSearch_MinSimilarityFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "doc-1", section.KindQSP)
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1",
		[]section.Section{{SectionID: "near", Text: "x"}, {SectionID: "far", Text: "y"}},
		map[string][]float32{"near": {1, 0}, "far": {-1, 0}}))

	matches, err := s.VectorSearch(ctx, "tenant-a", []float32{1, 0}, "", 10, 0.55)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].SectionID)
}

func TestVectorSearch_CosineBoundedZeroOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "doc-1", section.KindQSP)
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1",
		[]section.Section{{SectionID: "opposite", Text: "x"}}, map[string][]float32{"opposite": {-1, 0}}))

	matches, err := s.VectorSearch(ctx, "tenant-a", []float32{1, 0}, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.0)
	assert.LessOrEqual(t, matches[0].Similarity, 1.0)
	assert.InDelta(t, 0.0, matches[0].Similarity, 1e-6)
}

func TestVectorSearch_WithCacheRemainsCoherentAcrossWrites(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", WithVectorCache(2))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "doc-1", section.KindQSP)
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1",
		[]section.Section{{SectionID: "sec-1", Text: "x"}}, map[string][]float32{"sec-1": {1, 0}}))

	matches, err := s.VectorSearch(ctx, "tenant-a", []float32{1, 0}, "", 5, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// A subsequent write must invalidate the cache so a new section is visible.
	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1",
		[]section.Section{{SectionID: "sec-2", Text: "y"}}, map[string][]float32{"sec-2": {0, 1}}))

	matches, err = s.VectorSearch(ctx, "tenant-a", []float32{0, 1}, "", 5, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sec-2", matches[0].SectionID)
}

func TestLexicalSearch_WeightsClauseIDOverText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "doc-1", section.KindQSP)

	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1", []section.Section{
		{SectionID: "clause-match", ClauseID: "4.2.4", Heading: "Other heading", Text: "unrelated body text"},
		{SectionID: "text-match", ClauseID: "9.9.9", Heading: "Other heading", Text: "mentions 4.2.4 once in passing"},
	}, nil))

	matches, err := s.LexicalSearch(ctx, "tenant-a", "4.2.4", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "clause-match", matches[0].SectionID)
}

func TestLexicalSearch_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDoc(t, s, "tenant-a", "doc-1", section.KindQSP)
	seedDoc(t, s, "tenant-b", "doc-2", section.KindQSP)

	require.NoError(t, s.UpsertSections(ctx, "tenant-a", "doc-1",
		[]section.Section{{SectionID: "sec-a", Heading: "records", Text: "electronic records control"}}, nil))
	require.NoError(t, s.UpsertSections(ctx, "tenant-b", "doc-2",
		[]section.Section{{SectionID: "sec-b", Heading: "records", Text: "electronic records control"}}, nil))

	matches, err := s.LexicalSearch(ctx, "tenant-a", "records", "", 10)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "sec-b", m.SectionID)
	}
}

func TestLexicalSearch_EmptyQueryRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LexicalSearch(context.Background(), "tenant-a", "   ", "", 10)
	assert.ErrorIs(t, err, ErrInputInvalid)
}
