// Package coverage implements the Coverage Analyzer (C9): for a
// regulatory framework, determines which clauses a tenant's QSP corpus
// cites at least once and which are gaps. No donor analog; built fresh,
// reusing pkg/diff.CompareClauseIDs for deterministic gap ordering.
package coverage

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/qspcompliance/engine/pkg/diff"
	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/store"
)

// Result is spec.md §4.9's output:
// {total_clauses, covered, uncovered_with_details, coverage_pct, high_priority_gaps}.
type Result struct {
	Framework            string
	TotalClauses         int
	Covered              int
	CoveragePct          float64 // percentage, 0-100, rounded to two decimals
	UncoveredWithDetails []store.FrameworkClause
	HighPriorityGaps     []store.FrameworkClause
}

var criticalityRank = map[string]int{"high": 3, "medium": 2, "low": 1}

// Analyze computes framework clause coverage for tenantID: a clause is
// covered iff at least one of the tenant's QSP sections cites
// (framework, clause_id) in its extracted References, per spec.md §4.9.
func Analyze(ctx context.Context, s *store.Store, tenantID, framework string) (Result, error) {
	clauses, err := s.ListFrameworkClauses(ctx, framework)
	if err != nil {
		return Result{}, fmt.Errorf("coverage: listing framework clauses: %w", err)
	}

	qspSections, err := s.GetSections(ctx, tenantID, store.SectionFilter{DocKind: section.KindQSP})
	if err != nil {
		return Result{}, fmt.Errorf("coverage: loading QSP sections: %w", err)
	}

	cited := make(map[string]bool)
	for _, sec := range qspSections {
		for _, ref := range sec.References {
			if ref.Framework == framework {
				cited[ref.ClauseID] = true
			}
		}
	}

	var covered int
	var uncovered []store.FrameworkClause
	for _, c := range clauses {
		if cited[c.ClauseID] {
			covered++
			continue
		}
		uncovered = append(uncovered, c)
	}

	sort.Slice(uncovered, func(i, j int) bool {
		ri, rj := criticalityRank[uncovered[i].Criticality], criticalityRank[uncovered[j].Criticality]
		if ri != rj {
			return ri > rj
		}
		return diff.CompareClauseIDs(uncovered[i].ClauseID, uncovered[j].ClauseID) < 0
	})

	var highPriority []store.FrameworkClause
	for _, c := range uncovered {
		if c.Criticality == "high" {
			highPriority = append(highPriority, c)
		}
	}

	return Result{
		Framework:            framework,
		TotalClauses:         len(clauses),
		Covered:              covered,
		CoveragePct:          coveragePct(covered, len(clauses)),
		UncoveredWithDetails: uncovered,
		HighPriorityGaps:     highPriority,
	}, nil
}

// coveragePct reports covered/total as a percentage rounded to two
// decimals. A framework with zero clauses is vacuously fully covered.
func coveragePct(covered, total int) float64 {
	if total == 0 {
		return 100.0
	}
	pct := float64(covered) / float64(total) * 100
	return math.Round(pct*100) / 100
}
