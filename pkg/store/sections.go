package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qspcompliance/engine/internal/encoding"
	"github.com/qspcompliance/engine/pkg/section"
)

// SectionFilter scopes a GetSections query, per spec.md §4.5's "filter by
// doc_kind, doc_id, clause_id, or full-tenant scan".
type SectionFilter struct {
	DocKind  section.DocKind // empty = any
	DocID    string          // empty = any
	ClauseID string          // empty = any
}

// UpsertSections transactionally persists doc's sections and their
// embeddings: either all rows land or none do. Re-upserting a section_id
// replaces its text and embedding. Embeddings are optional per-section —
// a nil Vector means "no vector yet" and leaves any existing embedding row
// untouched only if the section itself is new; a re-upsert of an existing
// section_id with a nil vector removes its stored embedding, since the
// caller is declaring the section's full current state.
func (s *Store) UpsertSections(ctx context.Context, tenantID, docID string, sections []section.Section, vectors map[string][]float32) error {
	if err := requireTenant(tenantID); err != nil {
		return wrapError("upsert_sections", err)
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return wrapError("upsert_sections", ErrStoreClosed)
	}
	s.mu.RUnlock()

	lock := s.docLock(tenantID, docID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("upsert_sections", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	sectionStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sections (section_id, doc_id, tenant_id, clause_id, section_path, heading, text, page, depth, cross_refs, refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(section_id) DO UPDATE SET
			clause_id=excluded.clause_id, section_path=excluded.section_path, heading=excluded.heading,
			text=excluded.text, page=excluded.page, depth=excluded.depth,
			cross_refs=excluded.cross_refs, refs=excluded.refs
	`)
	if err != nil {
		return wrapError("upsert_sections", fmt.Errorf("prepare section stmt: %w", err))
	}
	defer sectionStmt.Close()

	embStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO section_embeddings (section_id, tenant_id, vector)
		VALUES (?, ?, ?)
		ON CONFLICT(section_id) DO UPDATE SET vector=excluded.vector, tenant_id=excluded.tenant_id
	`)
	if err != nil {
		return wrapError("upsert_sections", fmt.Errorf("prepare embedding stmt: %w", err))
	}
	defer embStmt.Close()

	deleteEmbStmt, err := tx.PrepareContext(ctx, `DELETE FROM section_embeddings WHERE section_id = ?`)
	if err != nil {
		return wrapError("upsert_sections", fmt.Errorf("prepare delete-embedding stmt: %w", err))
	}
	defer deleteEmbStmt.Close()

	for i, sec := range sections {
		if sec.SectionID == "" {
			return wrapError("upsert_sections", fmt.Errorf("%w: section at index %d has no section_id", ErrInputInvalid, i))
		}

		crossRefsJSON, err := json.Marshal(sec.CrossRefs)
		if err != nil {
			return wrapError("upsert_sections", fmt.Errorf("marshal cross_refs: %w", err))
		}
		refsJSON, err := json.Marshal(sec.References)
		if err != nil {
			return wrapError("upsert_sections", fmt.Errorf("marshal refs: %w", err))
		}

		var clauseID sql.NullString
		if sec.ClauseID != "" {
			clauseID = sql.NullString{String: sec.ClauseID, Valid: true}
		}
		var page sql.NullInt64
		if sec.Page != nil {
			page = sql.NullInt64{Int64: int64(*sec.Page), Valid: true}
		}

		if _, err := sectionStmt.ExecContext(ctx, sec.SectionID, docID, tenantID, clauseID, sec.SectionPath, sec.Heading, sec.Text, page, sec.Depth, string(crossRefsJSON), string(refsJSON)); err != nil {
			return wrapError("upsert_sections", fmt.Errorf("upsert section %s: %w", sec.SectionID, err))
		}

		vector, hasVector := vectors[sec.SectionID]
		if !hasVector || vector == nil {
			if _, err := deleteEmbStmt.ExecContext(ctx, sec.SectionID); err != nil {
				return wrapError("upsert_sections", fmt.Errorf("clear embedding for %s: %w", sec.SectionID, err))
			}
			continue
		}

		if err := encoding.ValidateVector(vector); err != nil {
			return wrapError("upsert_sections", fmt.Errorf("%w: section %s: %v", ErrInputInvalid, sec.SectionID, err))
		}
		vectorBytes, err := encoding.EncodeVector(vector)
		if err != nil {
			return wrapError("upsert_sections", fmt.Errorf("encode vector for %s: %w", sec.SectionID, err))
		}
		if _, err := embStmt.ExecContext(ctx, sec.SectionID, tenantID, vectorBytes); err != nil {
			return wrapError("upsert_sections", fmt.Errorf("upsert embedding %s: %w", sec.SectionID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapError("upsert_sections", fmt.Errorf("commit: %w", err))
	}

	if s.cache != nil {
		s.cache.InvalidateTenant(tenantID)
	}
	s.logger.Debug("sections upserted", "tenant_id", tenantID, "doc_id", docID, "count", len(sections))
	return nil
}

// GetSections returns every section visible to tenantID matching filter.
// Every returned Section's TenantID equals tenantID (spec.md §4.5, §8
// invariant 1): the store refuses to run without one.
func (s *Store) GetSections(ctx context.Context, tenantID string, filter SectionFilter) ([]section.Section, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("get_sections", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("get_sections", ErrStoreClosed)
	}

	query := `
		SELECT s.section_id, s.doc_id, s.tenant_id, s.clause_id, s.section_path, s.heading, s.text, s.page, s.depth, s.cross_refs, s.refs, s.created_at
		FROM sections s
		JOIN documents d ON d.doc_id = s.doc_id AND d.deleted_at IS NULL
		WHERE s.tenant_id = ?`
	args := []interface{}{tenantID}

	if filter.DocKind != "" {
		query += " AND d.doc_kind = ?"
		args = append(args, string(filter.DocKind))
	}
	if filter.DocID != "" {
		query += " AND s.doc_id = ?"
		args = append(args, filter.DocID)
	}
	if filter.ClauseID != "" {
		query += " AND s.clause_id = ?"
		args = append(args, filter.ClauseID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("get_sections", fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	var out []section.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, wrapError("get_sections", err)
		}
		out = append(out, sec)
	}
	return out, wrapError("get_sections", rows.Err())
}

// GetSectionsByIDs returns the sections in ids visible to tenantID, in no
// particular order. Unknown or cross-tenant ids are silently omitted
// rather than erroring, since callers (the Hybrid Retriever's merge step)
// typically pass ids drawn from a prior tenant-scoped query.
func (s *Store) GetSectionsByIDs(ctx context.Context, tenantID string, ids []string) ([]section.Section, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("get_sections_by_ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("get_sections_by_ids", ErrStoreClosed)
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT s.section_id, s.doc_id, s.tenant_id, s.clause_id, s.section_path, s.heading, s.text, s.page, s.depth, s.cross_refs, s.refs, s.created_at
		FROM sections s
		JOIN documents d ON d.doc_id = s.doc_id AND d.deleted_at IS NULL
		WHERE s.tenant_id = ? AND s.section_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("get_sections_by_ids", fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	var out []section.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, wrapError("get_sections_by_ids", err)
		}
		out = append(out, sec)
	}
	return out, wrapError("get_sections_by_ids", rows.Err())
}

// DeleteDoc hard-deletes the document and cascade-deletes its sections and
// embeddings, per spec.md §4.5. For the reversible alternative, see
// SoftDeleteDocument.
func (s *Store) DeleteDoc(ctx context.Context, tenantID, docID string) error {
	if err := requireTenant(tenantID); err != nil {
		return wrapError("delete_doc", err)
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return wrapError("delete_doc", ErrStoreClosed)
	}
	s.mu.RUnlock()

	lock := s.docLock(tenantID, docID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ? AND tenant_id = ?`, docID, tenantID)
	if err != nil {
		return wrapError("delete_doc", fmt.Errorf("delete: %w", err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapError("delete_doc", err)
	}
	if rows == 0 {
		return wrapError("delete_doc", ErrNotFound)
	}

	if s.cache != nil {
		s.cache.InvalidateTenant(tenantID)
	}
	return nil
}

func scanSection(rows *sql.Rows) (section.Section, error) {
	var sec section.Section
	var clauseID sql.NullString
	var page sql.NullInt64
	var crossRefsJSON, refsJSON string

	if err := rows.Scan(&sec.SectionID, &sec.DocID, &sec.TenantID, &clauseID, &sec.SectionPath, &sec.Heading, &sec.Text, &page, &sec.Depth, &crossRefsJSON, &refsJSON, &sec.CreatedAt); err != nil {
		return section.Section{}, fmt.Errorf("scan section: %w", err)
	}
	if clauseID.Valid {
		sec.ClauseID = clauseID.String
	}
	if page.Valid {
		p := int(page.Int64)
		sec.Page = &p
	}
	if crossRefsJSON != "" {
		if err := json.Unmarshal([]byte(crossRefsJSON), &sec.CrossRefs); err != nil {
			return section.Section{}, fmt.Errorf("decode cross_refs: %w", err)
		}
	}
	if refsJSON != "" {
		if err := json.Unmarshal([]byte(refsJSON), &sec.References); err != nil {
			return section.Section{}, fmt.Errorf("decode refs: %w", err)
		}
	}
	return sec, nil
}
