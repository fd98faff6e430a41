package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qspcompliance/engine/pkg/section"
)

// CreateDocument inserts a new Document row. A Document is immutable
// after ingest except for soft-delete (spec.md §3).
func (s *Store) CreateDocument(ctx context.Context, doc section.Document) error {
	if err := requireTenant(doc.TenantID); err != nil {
		return wrapError("create_document", err)
	}
	if doc.DocID == "" {
		return wrapError("create_document", fmt.Errorf("%w: doc_id is required", ErrInputInvalid))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("create_document", ErrStoreClosed)
	}

	var series, part, year sql.NullInt64
	if doc.StandardIdentity != nil {
		series = sql.NullInt64{Int64: int64(doc.StandardIdentity.Series), Valid: true}
		year = sql.NullInt64{Int64: int64(doc.StandardIdentity.Year), Valid: true}
		if doc.StandardIdentity.Part != nil {
			part = sql.NullInt64{Int64: int64(*doc.StandardIdentity.Part), Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, tenant_id, doc_kind, framework, standard_series, standard_part, standard_year, display_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, doc.DocID, doc.TenantID, string(doc.DocKind), doc.Framework, series, part, year, doc.DisplayName)
	if err != nil {
		return wrapError("create_document", fmt.Errorf("insert: %w", err))
	}
	return nil
}

// GetDocument retrieves a document by (tenant_id, doc_id), excluding
// soft-deleted rows.
func (s *Store) GetDocument(ctx context.Context, tenantID, docID string) (section.Document, error) {
	if err := requireTenant(tenantID); err != nil {
		return section.Document{}, wrapError("get_document", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return section.Document{}, wrapError("get_document", ErrStoreClosed)
	}

	var doc section.Document
	var framework sql.NullString
	var series, part, year sql.NullInt64
	var deletedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, tenant_id, doc_kind, framework, standard_series, standard_part, standard_year, display_name, created_at, deleted_at
		FROM documents WHERE tenant_id = ? AND doc_id = ? AND deleted_at IS NULL
	`, tenantID, docID).Scan(&doc.DocID, &doc.TenantID, &doc.DocKind, &framework, &series, &part, &year, &doc.DisplayName, &doc.CreatedAt, &deletedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return section.Document{}, wrapError("get_document", ErrNotFound)
	}
	if err != nil {
		return section.Document{}, wrapError("get_document", err)
	}

	if framework.Valid {
		doc.Framework = framework.String
	}
	if series.Valid {
		identity := &section.StandardIdentity{Series: int(series.Int64), Year: int(year.Int64)}
		if part.Valid {
			p := int(part.Int64)
			identity.Part = &p
		}
		doc.StandardIdentity = identity
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		doc.DeletedAt = &t
	}
	return doc, nil
}

// ListDocuments returns every non-deleted document visible to tenantID,
// optionally filtered by docKind.
func (s *Store) ListDocuments(ctx context.Context, tenantID string, docKind section.DocKind) ([]section.Document, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("list_documents", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("list_documents", ErrStoreClosed)
	}

	query := `
		SELECT doc_id, tenant_id, doc_kind, framework, standard_series, standard_part, standard_year, display_name, created_at
		FROM documents WHERE tenant_id = ? AND deleted_at IS NULL`
	args := []interface{}{tenantID}
	if docKind != "" {
		query += " AND doc_kind = ?"
		args = append(args, string(docKind))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list_documents", err)
	}
	defer rows.Close()

	var out []section.Document
	for rows.Next() {
		var doc section.Document
		var framework sql.NullString
		var series, part, year sql.NullInt64
		if err := rows.Scan(&doc.DocID, &doc.TenantID, &doc.DocKind, &framework, &series, &part, &year, &doc.DisplayName, &doc.CreatedAt); err != nil {
			return nil, wrapError("list_documents", err)
		}
		if framework.Valid {
			doc.Framework = framework.String
		}
		if series.Valid {
			identity := &section.StandardIdentity{Series: int(series.Int64), Year: int(year.Int64)}
			if part.Valid {
				p := int(part.Int64)
				identity.Part = &p
			}
			doc.StandardIdentity = identity
		}
		out = append(out, doc)
	}
	return out, wrapError("list_documents", rows.Err())
}

// SoftDeleteDocument marks a document deleted without removing its rows,
// used when a caller wants the document excluded from future reads but
// its history preserved. DeleteDoc (sections.go) performs the hard,
// cascading delete spec.md §4.5 describes for delete_doc.
func (s *Store) SoftDeleteDocument(ctx context.Context, tenantID, docID string) error {
	if err := requireTenant(tenantID); err != nil {
		return wrapError("soft_delete_document", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return wrapError("soft_delete_document", ErrStoreClosed)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at = ? WHERE tenant_id = ? AND doc_id = ? AND deleted_at IS NULL
	`, time.Now().UTC(), tenantID, docID)
	if err != nil {
		return wrapError("soft_delete_document", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapError("soft_delete_document", err)
	}
	if rows == 0 {
		return wrapError("soft_delete_document", ErrNotFound)
	}
	return nil
}
