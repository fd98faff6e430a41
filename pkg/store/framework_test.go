package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameworkClauses_UpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clauses := []FrameworkClause{
		{Framework: "ISO_13485", ClauseID: "4.2.4", Title: "Control of records", Criticality: "high", Category: "records"},
		{Framework: "ISO_13485", ClauseID: "7.5.1", Title: "Control of production", Criticality: "medium", Category: "production"},
	}
	require.NoError(t, s.UpsertFrameworkClauses(ctx, clauses))

	got, err := s.ListFrameworkClauses(ctx, "ISO_13485")
	require.NoError(t, err)
	require.Len(t, got, 2)

	frameworks, err := s.ListFrameworks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ISO_13485"}, frameworks)
}

func TestFrameworkClauses_UpsertReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFrameworkClauses(ctx, []FrameworkClause{
		{Framework: "FDA_21CFR820", ClauseID: "820.30", Title: "Design controls", Criticality: "medium"},
	}))
	require.NoError(t, s.UpsertFrameworkClauses(ctx, []FrameworkClause{
		{Framework: "FDA_21CFR820", ClauseID: "820.30", Title: "Design controls (revised)", Criticality: "high"},
	}))

	got, err := s.ListFrameworkClauses(ctx, "FDA_21CFR820")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Criticality)
	assert.Equal(t, "Design controls (revised)", got[0].Title)
}
