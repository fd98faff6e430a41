package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateRun inserts a new AnalysisRun row with status running, per
// spec.md §4.8's run state machine.
func (s *Store) CreateRun(ctx context.Context, run AnalysisRun) error {
	if err := requireTenant(run.TenantID); err != nil {
		return wrapError("create_run", err)
	}
	if run.RunID == "" {
		return wrapError("create_run", fmt.Errorf("%w: run_id is required", ErrInputInvalid))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("create_run", ErrStoreClosed)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, tenant_id, run_type, status, started_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, run.RunID, run.TenantID, run.RunType, string(RunRunning))
	if err != nil {
		return wrapError("create_run", err)
	}
	return nil
}

// CompleteRun transitions a run from running to completed exactly once,
// recording total_impacts.
func (s *Store) CompleteRun(ctx context.Context, tenantID, runID string, totalImpacts int) error {
	return s.finishRun(ctx, tenantID, runID, RunCompleted, &totalImpacts)
}

// FailRun transitions a run from running to failed; total_impacts is left
// unset per spec.md §3.
func (s *Store) FailRun(ctx context.Context, tenantID, runID string) error {
	return s.finishRun(ctx, tenantID, runID, RunFailed, nil)
}

// PartialRun marks a run partial (some deltas failed but the run
// produced usable results), recording how many impacts were found,
// per spec.md §7's partial-report behavior.
func (s *Store) PartialRun(ctx context.Context, tenantID, runID string, totalImpacts int) error {
	return s.finishRun(ctx, tenantID, runID, RunPartial, &totalImpacts)
}

func (s *Store) finishRun(ctx context.Context, tenantID, runID string, status RunStatus, totalImpacts *int) error {
	if err := requireTenant(tenantID); err != nil {
		return wrapError("finish_run", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("finish_run", ErrStoreClosed)
	}

	var total sql.NullInt64
	if totalImpacts != nil {
		total = sql.NullInt64{Int64: int64(*totalImpacts), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs SET status = ?, completed_at = CURRENT_TIMESTAMP, total_impacts = ?
		WHERE run_id = ? AND tenant_id = ? AND status = ?
	`, string(status), total, runID, tenantID, string(RunRunning))
	if err != nil {
		return wrapError("finish_run", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapError("finish_run", err)
	}
	if rows == 0 {
		return wrapError("finish_run", ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by (run_id, tenant_id). A run whose tenant_id
// does not match the caller returns NotFound, never a distinct
// forbidden error, to avoid leaking existence (spec.md §4.10).
func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (AnalysisRun, error) {
	if err := requireTenant(tenantID); err != nil {
		return AnalysisRun{}, wrapError("get_run", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return AnalysisRun{}, wrapError("get_run", ErrStoreClosed)
	}

	var run AnalysisRun
	var completedAt sql.NullTime
	var totalImpacts sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, run_type, status, started_at, completed_at, total_impacts
		FROM analysis_runs WHERE run_id = ? AND tenant_id = ?
	`, runID, tenantID).Scan(&run.RunID, &run.TenantID, &run.RunType, &run.Status, &run.StartedAt, &completedAt, &totalImpacts)

	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRun{}, wrapError("get_run", ErrNotFound)
	}
	if err != nil {
		return AnalysisRun{}, wrapError("get_run", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if totalImpacts.Valid {
		n := int(totalImpacts.Int64)
		run.TotalImpacts = &n
	}
	return run, nil
}

// UpsertImpacts writes impacts keyed by (run_id, clause_id,
// qsp_section_id): a re-run with identical inputs overwrites cleanly
// rather than duplicating or requiring a destructive delete phase first
// (spec.md §9 "idempotent upserts over deletes").
func (s *Store) UpsertImpacts(ctx context.Context, impacts []ImpactRecord) error {
	if len(impacts) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("upsert_impacts", ErrStoreClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("upsert_impacts", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO impact_records
			(impact_id, run_id, tenant_id, clause_id, change_type, qsp_section_id, qsp_doc, qsp_clause, heading, qsp_text, qsp_text_full, similarity, rationale, reviewed, custom_rationale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(run_id, clause_id, qsp_section_id) DO UPDATE SET
			change_type=excluded.change_type, qsp_doc=excluded.qsp_doc, qsp_clause=excluded.qsp_clause,
			heading=excluded.heading, qsp_text=excluded.qsp_text, qsp_text_full=excluded.qsp_text_full,
			similarity=excluded.similarity, rationale=excluded.rationale, updated_at=CURRENT_TIMESTAMP
	`)
	if err != nil {
		return wrapError("upsert_impacts", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for i, imp := range impacts {
		if imp.ImpactID == "" || imp.RunID == "" {
			return wrapError("upsert_impacts", fmt.Errorf("%w: impact at index %d missing impact_id or run_id", ErrInputInvalid, i))
		}
		if _, err := stmt.ExecContext(ctx, imp.ImpactID, imp.RunID, imp.TenantID, imp.ClauseID, string(imp.ChangeType),
			imp.QSPSectionID, imp.QSPDoc, imp.QSPClause, imp.Heading, imp.QSPText, imp.QSPTextFull, imp.Similarity, imp.Rationale,
			imp.Reviewed, imp.CustomRationale); err != nil {
			return wrapError("upsert_impacts", fmt.Errorf("upsert impact %s: %w", imp.ImpactID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapError("upsert_impacts", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ListImpacts returns every impact for a run, ordered by clause_id then
// descending similarity then qsp_section_id — the deterministic order
// spec.md §5 requires downstream of the per-delta fan-out.
func (s *Store) ListImpacts(ctx context.Context, tenantID, runID string) ([]ImpactRecord, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("list_impacts", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("list_impacts", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT impact_id, run_id, tenant_id, clause_id, change_type, qsp_section_id, qsp_doc, qsp_clause, heading, qsp_text, qsp_text_full, similarity, rationale, reviewed, custom_rationale, created_at, updated_at
		FROM impact_records WHERE run_id = ? AND tenant_id = ?
		ORDER BY clause_id ASC, similarity DESC, qsp_section_id ASC
	`, runID, tenantID)
	if err != nil {
		return nil, wrapError("list_impacts", err)
	}
	defer rows.Close()

	var out []ImpactRecord
	for rows.Next() {
		var imp ImpactRecord
		var qspClause, customRationale sql.NullString
		if err := rows.Scan(&imp.ImpactID, &imp.RunID, &imp.TenantID, &imp.ClauseID, &imp.ChangeType, &imp.QSPSectionID,
			&imp.QSPDoc, &qspClause, &imp.Heading, &imp.QSPText, &imp.QSPTextFull, &imp.Similarity, &imp.Rationale, &imp.Reviewed,
			&customRationale, &imp.CreatedAt, &imp.UpdatedAt); err != nil {
			return nil, wrapError("list_impacts", err)
		}
		imp.QSPClause = qspClause.String
		imp.CustomRationale = customRationale.String
		out = append(out, imp)
	}
	return out, wrapError("list_impacts", rows.Err())
}

// ReviewImpact records a reviewer's disposition on an impact: whether it
// has been reviewed, and an optional override rationale. This implements
// the human-review operation the original system exposed over HTTP as
// PUT /impacts/{id}; here it is a plain store call, transport being out
// of scope.
func (s *Store) ReviewImpact(ctx context.Context, tenantID, runID, impactID string, reviewed bool, customRationale string) error {
	if err := requireTenant(tenantID); err != nil {
		return wrapError("review_impact", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("review_impact", ErrStoreClosed)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE impact_records SET reviewed = ?, custom_rationale = ?, updated_at = CURRENT_TIMESTAMP
		WHERE impact_id = ? AND run_id = ? AND tenant_id = ?
	`, reviewed, customRationale, impactID, runID, tenantID)
	if err != nil {
		return wrapError("review_impact", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapError("review_impact", err)
	}
	if rows == 0 {
		return wrapError("review_impact", ErrNotFound)
	}
	return nil
}
