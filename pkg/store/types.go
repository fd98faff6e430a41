package store

import "time"

// RunStatus is an AnalysisRun's lifecycle state: a run starts running and
// moves exactly once to completed, failed, or partial.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
)

// AnalysisRun is one invocation of the Change Impact Analyzer (C8).
type AnalysisRun struct {
	RunID        string
	TenantID     string
	RunType      string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	TotalImpacts *int
}

// ChangeType classifies a Delta or the ImpactRecord derived from it.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// ImpactRecord links a regulatory Delta to a QSP section warranting review.
// QSPSectionID is the store's dedup key component (spec.md §3's uniqueness
// invariant names it "qsp_section_id" without adding it to the public field
// set); it is not part of the exported JSON record. Heading is likewise
// not part of the §3 JSON field set but is needed by the CSV export's
// "heading" column (spec.md §4.10); it is denormalized from the matched
// section at detection time rather than joined at export time, so a CSV
// export still works after the source section is deleted.
type ImpactRecord struct {
	ImpactID        string
	RunID           string
	TenantID        string
	ClauseID        string
	ChangeType      ChangeType
	QSPSectionID    string
	QSPDoc          string
	QSPClause       string
	Heading         string
	QSPText         string
	QSPTextFull     string
	Similarity      float64
	Rationale       string
	Reviewed        bool
	CustomRationale string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FrameworkClause is read-only reference data used by the Coverage
// Analyzer (C9).
type FrameworkClause struct {
	Framework   string
	ClauseID    string
	Title       string
	Criticality string // "high" | "medium" | "low"
	Category    string
}

// VectorMatch pairs a section with its cosine similarity to a query vector.
type VectorMatch struct {
	SectionID  string
	Similarity float64
}

// LexicalMatch pairs a section with its weighted trigram bm25 score.
type LexicalMatch struct {
	SectionID string
	Score     float64
}
