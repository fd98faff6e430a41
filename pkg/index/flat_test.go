package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_ReturnsNearestByTenant(t *testing.T) {
	idx := New(3)
	idx.Upsert("tenant-a", "s1", []float32{1, 0, 0})
	idx.Upsert("tenant-a", "s2", []float32{0, 1, 0})
	idx.Upsert("tenant-b", "s3", []float32{1, 0, 0})

	matches, ok := idx.Search("tenant-a", []float32{1, 0, 0}, 2)
	require.True(t, ok)
	require.Len(t, matches, 2)
	assert.Equal(t, "s1", matches[0].SectionID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestSearch_TenantIsolation(t *testing.T) {
	idx := New(3)
	idx.Upsert("tenant-a", "s1", []float32{1, 0, 0})

	_, ok := idx.Search("tenant-b", []float32{1, 0, 0}, 5)
	assert.False(t, ok)
}

func TestSearch_SimilarityBoundedZeroOne(t *testing.T) {
	idx := New(2)
	idx.Upsert("t", "opposite", []float32{-1, 0})
	matches, ok := idx.Search("t", []float32{1, 0}, 1)
	require.True(t, ok)
	require.Len(t, matches, 1)
	assert.GreaterOrEqual(t, matches[0].Similarity, 0.0)
	assert.LessOrEqual(t, matches[0].Similarity, 1.0)
	assert.InDelta(t, 0.0, matches[0].Similarity, 1e-9)
}

func TestInvalidateTenant(t *testing.T) {
	idx := New(2)
	idx.Upsert("t", "s1", []float32{1, 0})
	idx.InvalidateTenant("t")
	_, ok := idx.Search("t", []float32{1, 0}, 1)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	idx := New(2)
	idx.Upsert("t", "s1", []float32{1, 0})
	idx.Upsert("t", "s2", []float32{0, 1})
	idx.Delete("t", "s1")
	assert.Equal(t, 1, idx.Size("t"))
}
