package store

import (
	"context"
	"fmt"
)

// UpsertFrameworkClauses loads or replaces reference clause data for a
// framework, used by the Coverage Analyzer (C9) and seeded from
// cmd/qspctl's "coverage seed" subcommand.
func (s *Store) UpsertFrameworkClauses(ctx context.Context, clauses []FrameworkClause) error {
	if len(clauses) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("upsert_framework_clauses", ErrStoreClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("upsert_framework_clauses", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO framework_clauses (framework, clause_id, title, criticality, category)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(framework, clause_id) DO UPDATE SET
			title=excluded.title, criticality=excluded.criticality, category=excluded.category
	`)
	if err != nil {
		return wrapError("upsert_framework_clauses", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for _, c := range clauses {
		if c.Framework == "" || c.ClauseID == "" {
			return wrapError("upsert_framework_clauses", fmt.Errorf("%w: clause missing framework or clause_id", ErrInputInvalid))
		}
		if _, err := stmt.ExecContext(ctx, c.Framework, c.ClauseID, c.Title, c.Criticality, c.Category); err != nil {
			return wrapError("upsert_framework_clauses", fmt.Errorf("upsert %s/%s: %w", c.Framework, c.ClauseID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapError("upsert_framework_clauses", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ListFrameworkClauses returns every reference clause for a framework,
// used by the Coverage Analyzer as the denominator of its ratio.
func (s *Store) ListFrameworkClauses(ctx context.Context, framework string) ([]FrameworkClause, error) {
	if framework == "" {
		return nil, wrapError("list_framework_clauses", fmt.Errorf("%w: framework is required", ErrInputInvalid))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("list_framework_clauses", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT framework, clause_id, title, criticality, category FROM framework_clauses WHERE framework = ?
	`, framework)
	if err != nil {
		return nil, wrapError("list_framework_clauses", err)
	}
	defer rows.Close()

	var out []FrameworkClause
	for rows.Next() {
		var c FrameworkClause
		if err := rows.Scan(&c.Framework, &c.ClauseID, &c.Title, &c.Criticality, &c.Category); err != nil {
			return nil, wrapError("list_framework_clauses", err)
		}
		out = append(out, c)
	}
	return out, wrapError("list_framework_clauses", rows.Err())
}

// ListFrameworks returns the distinct framework tags with seeded clause
// data, used by cmd/qspctl to loop over all frameworks when none is
// given explicitly (spec.md §9 original_source supplement 3).
func (s *Store) ListFrameworks(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("list_frameworks", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT framework FROM framework_clauses ORDER BY framework`)
	if err != nil {
		return nil, wrapError("list_frameworks", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, wrapError("list_frameworks", err)
		}
		out = append(out, f)
	}
	return out, wrapError("list_frameworks", rows.Err())
}
