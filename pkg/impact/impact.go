// Package impact implements the Change Impact Analyzer (C8): for each
// regulatory clause delta, finds the tenant's QSP sections that warrant
// review and persists them as ImpactRecords under one AnalysisRun.
//
// Concurrency is grounded on spec.md §5's scheduling model rather than any
// donor analog: one goroutine per delta, bounded by
// golang.org/x/sync/semaphore.Weighted, fanning in to a preallocated,
// index-owned results slice so final ordering falls out of a single
// deterministic pass (no results-channel reordering). The per-run upsert
// loop reuses the donor's idempotent-upsert-over-delete philosophy via
// pkg/store.UpsertImpacts's (run_id, clause_id, qsp_section_id) key.
package impact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/qspcompliance/engine/internal/config"
	"github.com/qspcompliance/engine/pkg/diff"
	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/store"
)

// Embedder is implemented by the Embedding Client (C4) adapter.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SkipReason records a delta that produced no impact search, per spec.md
// §8's "Delta with empty change_text: skipped with a reason entry; run
// proceeds."
type SkipReason struct {
	ClauseID string
	Reason   string
}

// RunResult is the outcome of one detect_impacts call, spec.md §4.8.
type RunResult struct {
	RunID           string
	Status          store.RunStatus
	TotalImpacts    int
	Impacts         []store.ImpactRecord
	Skipped         []SkipReason
	GuidanceMessage string
}

var qspDocPattern = regexp.MustCompile(`^\d+(\.\d+)*-\d+`)

// DetectImpacts is spec.md §4.8's public operation:
// detect_impacts(tenant_id, deltas, top_k=5) -> RunResult.
func DetectImpacts(ctx context.Context, s *store.Store, embedder Embedder, cfg config.Config, tenantID string, deltas []diff.Delta, topK int) (RunResult, error) {
	if topK <= 0 {
		topK = 5
	}
	runID := uuid.NewString()

	if err := s.CreateRun(ctx, store.AnalysisRun{RunID: runID, TenantID: tenantID, RunType: "standard_diff"}); err != nil {
		return RunResult{}, fmt.Errorf("impact: creating run: %w", err)
	}

	qspSections, err := s.GetSections(ctx, tenantID, store.SectionFilter{DocKind: section.KindQSP})
	if err != nil {
		_ = s.FailRun(ctx, tenantID, runID)
		return RunResult{}, fmt.Errorf("impact: checking QSP corpus: %w", err)
	}
	if len(qspSections) == 0 {
		if err := s.CompleteRun(ctx, tenantID, runID, 0); err != nil {
			return RunResult{}, fmt.Errorf("impact: completing empty run: %w", err)
		}
		return RunResult{
			RunID:           runID,
			Status:          store.RunCompleted,
			GuidanceMessage: "no QSP sections are indexed for this tenant; ingest QSP documents before running impact analysis",
		}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RunDeadlineSec)*time.Second)
	defer cancel()

	outcomes := make([]deltaOutcome, len(deltas))
	sem := semaphore.NewWeighted(int64(cfg.DeltaFanout))
	var wg sync.WaitGroup

	for i, d := range deltas {
		wg.Add(1)
		go func(i int, d diff.Delta) {
			defer wg.Done()
			if err := sem.Acquire(runCtx, 1); err != nil {
				outcomes[i] = deltaOutcome{storeFault: err}
				return
			}
			defer sem.Release(1)

			deltaCtx, cancel := context.WithTimeout(runCtx, time.Duration(cfg.DeltaDeadlineSec)*time.Second)
			defer cancel()
			outcomes[i] = processDelta(deltaCtx, s, embedder, tenantID, runID, d, topK, cfg.ImpactSimThreshold)
		}(i, d)
	}
	wg.Wait()

	var (
		impacts  []store.ImpactRecord
		skipped  []SkipReason
		partial  bool
		storeErr error
	)
	for _, o := range outcomes {
		if o.storeFault != nil {
			storeErr = o.storeFault
			continue
		}
		if o.skipped != nil {
			skipped = append(skipped, *o.skipped)
		}
		if o.embeddingFailed {
			partial = true
		}
		impacts = append(impacts, o.impacts...)
	}

	if storeErr != nil {
		_ = s.FailRun(ctx, tenantID, runID)
		return RunResult{RunID: runID, Status: store.RunFailed, Skipped: skipped}, nil
	}

	if len(impacts) > 0 {
		if err := s.UpsertImpacts(ctx, impacts); err != nil {
			_ = s.FailRun(ctx, tenantID, runID)
			return RunResult{RunID: runID, Status: store.RunFailed, Skipped: skipped}, nil
		}
	}

	status := store.RunCompleted
	if partial {
		if err := s.PartialRun(ctx, tenantID, runID, len(impacts)); err != nil {
			return RunResult{}, fmt.Errorf("impact: marking run partial: %w", err)
		}
		status = store.RunPartial
	} else {
		if err := s.CompleteRun(ctx, tenantID, runID, len(impacts)); err != nil {
			return RunResult{}, fmt.Errorf("impact: completing run: %w", err)
		}
	}

	return RunResult{RunID: runID, Status: status, TotalImpacts: len(impacts), Impacts: impacts, Skipped: skipped}, nil
}

type deltaOutcome struct {
	impacts         []store.ImpactRecord
	skipped         *SkipReason
	embeddingFailed bool
	storeFault      error
}

func processDelta(ctx context.Context, s *store.Store, embedder Embedder, tenantID, runID string, d diff.Delta, topK int, minSimilarity float64) deltaOutcome {
	changeText := strings.TrimSpace(d.ChangeText())
	if changeText == "" {
		return deltaOutcome{skipped: &SkipReason{ClauseID: d.ClauseID, Reason: "empty_change_text"}}
	}

	queryVec, err := embedder.Embed(ctx, changeText)
	if err != nil {
		return deltaOutcome{embeddingFailed: true, skipped: &SkipReason{ClauseID: d.ClauseID, Reason: "embedding_unavailable"}}
	}

	matches, err := s.VectorSearch(ctx, tenantID, queryVec, section.KindQSP, topK, minSimilarity)
	if err != nil {
		return deltaOutcome{storeFault: err}
	}

	impacts := make([]store.ImpactRecord, 0, len(matches))
	for _, m := range matches {
		sections, err := s.GetSectionsByIDs(ctx, tenantID, []string{m.SectionID})
		if err != nil {
			return deltaOutcome{storeFault: err}
		}
		if len(sections) == 0 {
			continue
		}
		sec := sections[0]

		doc, err := s.GetDocument(ctx, tenantID, sec.DocID)
		if err != nil {
			continue // source document vanished between search and fetch; skip this candidate only
		}

		impacts = append(impacts, store.ImpactRecord{
			ImpactID:     uuid.NewString(),
			RunID:        runID,
			TenantID:     tenantID,
			ClauseID:     d.ClauseID,
			ChangeType:   store.ChangeType(d.ChangeType),
			QSPSectionID: sec.SectionID,
			QSPDoc:       extractQSPDoc(doc.DisplayName),
			QSPClause:    sec.ClauseID,
			Heading:      sec.Heading,
			QSPText:      preview(sec.Text),
			QSPTextFull:  sec.Text,
			Similarity:   m.Similarity,
			Rationale:    rationale(d.ChangeType, sec.Heading, d.ClauseID, m.Similarity),
		})
	}
	return deltaOutcome{impacts: impacts}
}

const previewChars = 300

// preview bounds qsp_text for display; qsp_text_full always carries the
// complete, untruncated section text.
func preview(text string) string {
	if len(text) <= previewChars {
		return text
	}
	return text[:previewChars]
}

// extractQSPDoc pulls a compact document identifier from a QSP's display
// name by matching a leading clause-number pattern (e.g. "7.3-3" from
// "7.3-3 QSP 7.3-3 R9 ..."), falling back to the first whitespace-delimited
// token, per spec.md §4.8.
func extractQSPDoc(displayName string) string {
	if m := qspDocPattern.FindString(displayName); m != "" {
		return m
	}
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return displayName
	}
	return fields[0]
}

// rationale builds the reviewer-facing message for one candidate, per
// spec.md §4.8: phrased as an action (review/update/simplify), never as a
// compliance assertion.
func rationale(changeType diff.ChangeType, heading, clauseID string, similarity float64) string {
	strength := "Potential"
	switch {
	case similarity > 0.75:
		strength = "Strong"
	case similarity > 0.65:
		strength = "Moderate"
	}

	switch changeType {
	case diff.Added:
		return fmt.Sprintf("%s match: review %q against the newly added requirement for clause %s.", strength, heading, clauseID)
	case diff.Deleted:
		return fmt.Sprintf("%s match: simplify %q now that the requirement for clause %s has been removed.", strength, heading, clauseID)
	default: // diff.Modified
		return fmt.Sprintf("%s match: update %q to reflect the revised requirement for clause %s.", strength, heading, clauseID)
	}
}
