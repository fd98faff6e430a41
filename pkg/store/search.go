package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/qspcompliance/engine/internal/encoding"
	"github.com/qspcompliance/engine/pkg/section"
)

// VectorSearch returns the top_k sections for tenantID ranked by cosine
// similarity to query, filtered to min_similarity and, if docKind is
// non-empty, to that document kind. Similarity is reported in [0, 1] per
// spec.md §3's "1 - cos_dist" normalization.
func (s *Store) VectorSearch(ctx context.Context, tenantID string, query []float32, docKind section.DocKind, topK int, minSimilarity float64) ([]VectorMatch, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("vector_search", err)
	}
	if err := encoding.ValidateVector(query); err != nil {
		return nil, wrapError("vector_search", fmt.Errorf("%w: %v", ErrInputInvalid, err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("vector_search", ErrStoreClosed)
	}
	if topK <= 0 {
		topK = 10
	}

	candidates, err := s.vectorCandidates(ctx, tenantID, query, docKind, topK)
	if err != nil {
		return nil, wrapError("vector_search", err)
	}

	out := make([]VectorMatch, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= minSimilarity {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].SectionID < out[j].SectionID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// vectorCandidates fetches every tenant-visible, doc-kind-filtered
// embedding and scores it against query. When a vector cache is
// configured it is consulted first (populated lazily, invalidated on
// every write, per spec.md §4.5) and the candidate set is widened to
// account for it not knowing about doc_kind.
func (s *Store) vectorCandidates(ctx context.Context, tenantID string, query []float32, docKind section.DocKind, topK int) ([]VectorMatch, error) {
	if s.cache != nil && len(query) == s.cacheDim {
		if s.cache.Size(tenantID) == 0 {
			if err := s.loadTenantCache(ctx, tenantID); err != nil {
				return nil, err
			}
		}
		matches, ok := s.cache.Search(tenantID, query, topK*4)
		if ok {
			ids := make([]string, len(matches))
			simByID := make(map[string]float64, len(matches))
			for i, m := range matches {
				ids[i] = m.SectionID
				simByID[m.SectionID] = m.Similarity
			}
			filtered, err := s.filterSectionIDsByDocKind(ctx, tenantID, ids, docKind)
			if err != nil {
				return nil, err
			}
			out := make([]VectorMatch, len(filtered))
			for i, id := range filtered {
				out[i] = VectorMatch{SectionID: id, Similarity: simByID[id]}
			}
			return out, nil
		}
	}

	return s.vectorCandidatesFromDB(ctx, tenantID, query, docKind)
}

func (s *Store) loadTenantCache(ctx context.Context, tenantID string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.section_id, e.vector
		FROM section_embeddings e
		WHERE e.tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var vectorBytes []byte
		if err := rows.Scan(&id, &vectorBytes); err != nil {
			return fmt.Errorf("scan cache row: %w", err)
		}
		vector, err := encoding.DecodeVector(vectorBytes)
		if err != nil {
			s.logger.Warn("skipping undecodable cached vector", "section_id", id, "error", err)
			continue
		}
		if len(vector) != s.cacheDim {
			continue
		}
		s.cache.Upsert(tenantID, id, vector)
	}
	return rows.Err()
}

func (s *Store) filterSectionIDsByDocKind(ctx context.Context, tenantID string, ids []string, docKind section.DocKind) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT s.section_id FROM sections s
		JOIN documents d ON d.doc_id = s.doc_id AND d.deleted_at IS NULL
		WHERE s.tenant_id = ? AND s.section_id IN (%s)`, strings.Join(placeholders, ","))
	if docKind != "" {
		query += " AND d.doc_kind = ?"
		args = append(args, string(docKind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter by doc_kind: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) vectorCandidatesFromDB(ctx context.Context, tenantID string, query []float32, docKind section.DocKind) ([]VectorMatch, error) {
	sqlQuery := `
		SELECT e.section_id, e.vector
		FROM section_embeddings e
		JOIN sections s ON s.section_id = e.section_id
		JOIN documents d ON d.doc_id = s.doc_id AND d.deleted_at IS NULL
		WHERE e.tenant_id = ?`
	args := []interface{}{tenantID}
	if docKind != "" {
		sqlQuery += " AND d.doc_kind = ?"
		args = append(args, string(docKind))
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []VectorMatch
	for rows.Next() {
		var id string
		var vectorBytes []byte
		if err := rows.Scan(&id, &vectorBytes); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vector, err := encoding.DecodeVector(vectorBytes)
		if err != nil {
			s.logger.Warn("skipping undecodable stored vector", "section_id", id, "error", err)
			continue
		}
		out = append(out, VectorMatch{SectionID: id, Similarity: cosineSimilarity01(query, vector)})
	}
	return out, rows.Err()
}

func cosineSimilarity01(a, b []float32) float64 {
	var dot, magA, magB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2
}

// LexicalSearch runs a trigram-tokenized FTS5 query over sections'
// clause_id, heading, and text columns, weighted 3/2/1 to match spec.md
// §4.6's bm25 formula, restricted to tenantID and optionally docKind.
func (s *Store) LexicalSearch(ctx context.Context, tenantID, queryText string, docKind section.DocKind, topK int) ([]LexicalMatch, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, wrapError("lexical_search", err)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, wrapError("lexical_search", fmt.Errorf("%w: empty query text", ErrInputInvalid))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("lexical_search", ErrStoreClosed)
	}
	if topK <= 0 {
		topK = 10
	}

	matchExpr := `"` + strings.ReplaceAll(queryText, `"`, `""`) + `"`

	sqlQuery := `
		SELECT s.section_id, -bm25(sections_fts, 3.0, 2.0, 1.0) AS score
		FROM sections_fts
		JOIN sections s ON s.rowid = sections_fts.rowid
		JOIN documents d ON d.doc_id = s.doc_id AND d.deleted_at IS NULL
		WHERE sections_fts MATCH ? AND s.tenant_id = ?`
	args := []interface{}{matchExpr, tenantID}
	if docKind != "" {
		sqlQuery += " AND d.doc_kind = ?"
		args = append(args, string(docKind))
	}
	sqlQuery += " ORDER BY score DESC LIMIT ?"
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapError("lexical_search", fmt.Errorf("fts query: %w", err))
	}
	defer rows.Close()

	var out []LexicalMatch
	for rows.Next() {
		var m LexicalMatch
		if err := rows.Scan(&m.SectionID, &m.Score); err != nil {
			return nil, wrapError("lexical_search", fmt.Errorf("scan match: %w", err))
		}
		out = append(out, m)
	}
	return out, wrapError("lexical_search", rows.Err())
}
