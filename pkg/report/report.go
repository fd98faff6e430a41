// Package report implements Report Persistence (C10): retrieval of a
// completed AnalysisRun and export of its ImpactRecords as JSON or CSV,
// plus the coverage-gap exports the original system exposed alongside it.
//
// JSON/CSV conventions are grounded on the donor's pkg/core/io.go: an
// indented json.Encoder for JSON, encoding/csv (which already applies
// RFC 4180 quoting) for CSV. The donor's Dump/Load round-trips an entire
// embedding store; here the unit of export is one run, scoped by
// (run_id, tenant_id) per spec.md §4.10.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/qspcompliance/engine/pkg/coverage"
	"github.com/qspcompliance/engine/pkg/store"
)

// ImpactRecordView is the exact ImpactRecord JSON field set from spec.md
// §3 — qsp_section_id and heading are store-internal/CSV-only fields and
// are deliberately excluded here.
type ImpactRecordView struct {
	ImpactID        string  `json:"impact_id"`
	RunID           string  `json:"run_id"`
	TenantID        string  `json:"tenant_id"`
	ClauseID        string  `json:"clause_id"`
	ChangeType      string  `json:"change_type"`
	QSPDoc          string  `json:"qsp_doc"`
	QSPClause       string  `json:"qsp_clause"`
	QSPText         string  `json:"qsp_text"`
	QSPTextFull     string  `json:"qsp_text_full"`
	Similarity      float64 `json:"similarity"`
	Rationale       string  `json:"rationale"`
	Reviewed        bool    `json:"reviewed"`
	CustomRationale string  `json:"custom_rationale"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// RunSummary is spec.md §6's output shape:
// {run_id, status, total_changes_analyzed, total_impacts_found, threshold, impacts}.
type RunSummary struct {
	RunID                string             `json:"run_id"`
	Status               store.RunStatus    `json:"status"`
	TotalChangesAnalyzed int                `json:"total_changes_analyzed"`
	TotalImpactsFound    int                `json:"total_impacts_found"`
	Threshold            float64            `json:"threshold"`
	Impacts              []ImpactRecordView `json:"impacts"`
}

const csvColumnCount = 7

var csvHeader = []string{"clause_id", "change_type", "qsp_doc", "qsp_clause", "heading", "similarity", "rationale"}

func toView(imp store.ImpactRecord) ImpactRecordView {
	return ImpactRecordView{
		ImpactID:        imp.ImpactID,
		RunID:           imp.RunID,
		TenantID:        imp.TenantID,
		ClauseID:        imp.ClauseID,
		ChangeType:      string(imp.ChangeType),
		QSPDoc:          imp.QSPDoc,
		QSPClause:       imp.QSPClause,
		QSPText:         imp.QSPText,
		QSPTextFull:     imp.QSPTextFull,
		Similarity:      imp.Similarity,
		Rationale:       imp.Rationale,
		Reviewed:        imp.Reviewed,
		CustomRationale: imp.CustomRationale,
		CreatedAt:       imp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:       imp.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// BuildRunSummary loads a run and its impacts and assembles the §6 summary
// shape. A run whose tenant_id does not match tenantID surfaces as
// store.ErrNotFound (via GetRun), never a distinct forbidden error.
func BuildRunSummary(ctx context.Context, s *store.Store, tenantID, runID string, threshold float64) (RunSummary, error) {
	run, err := s.GetRun(ctx, tenantID, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("report: loading run: %w", err)
	}

	summary := RunSummary{
		RunID:     run.RunID,
		Status:    run.Status,
		Threshold: threshold,
	}
	if run.Status == store.RunFailed {
		// A failed report contains only the run header, per spec.md §7.
		return summary, nil
	}

	impacts, err := s.ListImpacts(ctx, tenantID, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("report: loading impacts: %w", err)
	}

	views := make([]ImpactRecordView, len(impacts))
	for i, imp := range impacts {
		views[i] = toView(imp)
	}
	summary.Impacts = views
	summary.TotalImpactsFound = len(views)
	// total_changes_analyzed is the input delta count, which analysis_runs
	// does not persist; callers that have it (e.g. cmd/qspctl, right after
	// calling impact.DetectImpacts) are expected to set it on the result.
	return summary, nil
}

// ExportImpactsJSON writes the run's ImpactRecords as an indented JSON
// array (exact §3 field set), following the donor's json.Encoder
// convention in pkg/core/io.go.
func ExportImpactsJSON(ctx context.Context, s *store.Store, tenantID, runID string, w io.Writer) error {
	if _, err := s.GetRun(ctx, tenantID, runID); err != nil {
		return fmt.Errorf("report: loading run: %w", err)
	}
	impacts, err := s.ListImpacts(ctx, tenantID, runID)
	if err != nil {
		return fmt.Errorf("report: loading impacts: %w", err)
	}

	views := make([]ImpactRecordView, len(impacts))
	for i, imp := range impacts {
		views[i] = toView(imp)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(views); err != nil {
		return fmt.Errorf("report: encoding JSON: %w", err)
	}
	return nil
}

// ExportImpactsCSV writes the run's ImpactRecords in the fixed column
// order spec.md §4.10 names. encoding/csv applies RFC 4180 quoting for
// fields containing commas, quotes, or newlines.
func ExportImpactsCSV(ctx context.Context, s *store.Store, tenantID, runID string, w io.Writer) error {
	if _, err := s.GetRun(ctx, tenantID, runID); err != nil {
		return fmt.Errorf("report: loading run: %w", err)
	}
	impacts, err := s.ListImpacts(ctx, tenantID, runID)
	if err != nil {
		return fmt.Errorf("report: loading impacts: %w", err)
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("report: writing CSV header: %w", err)
	}
	for _, imp := range impacts {
		row := make([]string, 0, csvColumnCount)
		row = append(row, imp.ClauseID, string(imp.ChangeType), imp.QSPDoc, imp.QSPClause, imp.Heading,
			fmt.Sprintf("%g", imp.Similarity), imp.Rationale)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("report: writing CSV row for impact %s: %w", imp.ImpactID, err)
		}
	}
	return writer.Error()
}

// ReviewImpact records a reviewer's disposition on an impact. This is a
// thin pass-through to pkg/store.ReviewImpact: the original system's
// PUT /impacts/{id} endpoint, with transport out of scope here.
func ReviewImpact(ctx context.Context, s *store.Store, tenantID, runID, impactID string, reviewed bool, customRationale string) error {
	return s.ReviewImpact(ctx, tenantID, runID, impactID, reviewed, customRationale)
}

// coverageGapRow is the exported shape of one uncovered clause.
type coverageGapRow struct {
	Framework   string `json:"framework"`
	ClauseID    string `json:"clause_id"`
	Title       string `json:"title"`
	Criticality string `json:"criticality"`
	Category    string `json:"category,omitempty"`
}

var coverageCSVHeader = []string{"framework", "clause_id", "title", "criticality", "category"}

// ExportCoverageJSON writes a coverage analysis result as a JSON object
// (summary fields plus the uncovered-clause detail array), mirroring the
// original system's export_coverage_report routine (SPEC_FULL.md §9).
func ExportCoverageJSON(result coverage.Result, w io.Writer) error {
	out := struct {
		Framework        string           `json:"framework"`
		TotalClauses     int              `json:"total_clauses"`
		Covered          int              `json:"covered"`
		CoveragePct      float64          `json:"coverage_pct"`
		UncoveredDetails []coverageGapRow `json:"uncovered_with_details"`
		HighPriorityGaps []coverageGapRow `json:"high_priority_gaps"`
	}{
		Framework:        result.Framework,
		TotalClauses:     result.TotalClauses,
		Covered:          result.Covered,
		CoveragePct:      result.CoveragePct,
		UncoveredDetails: toGapRows(result.UncoveredWithDetails),
		HighPriorityGaps: toGapRows(result.HighPriorityGaps),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("report: encoding coverage JSON: %w", err)
	}
	return nil
}

// ExportCoverageCSV writes the uncovered clauses of a coverage analysis
// result as CSV, same RFC 4180 writer as impact export.
func ExportCoverageCSV(result coverage.Result, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(coverageCSVHeader); err != nil {
		return fmt.Errorf("report: writing coverage CSV header: %w", err)
	}
	for _, c := range result.UncoveredWithDetails {
		row := []string{c.Framework, c.ClauseID, c.Title, c.Criticality, c.Category}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("report: writing coverage CSV row for clause %s: %w", c.ClauseID, err)
		}
	}
	return writer.Error()
}

func toGapRows(clauses []store.FrameworkClause) []coverageGapRow {
	rows := make([]coverageGapRow, len(clauses))
	for i, c := range clauses {
		rows[i] = coverageGapRow{
			Framework:   c.Framework,
			ClauseID:    c.ClauseID,
			Title:       c.Title,
			Criticality: c.Criticality,
			Category:    c.Category,
		}
	}
	return rows
}
