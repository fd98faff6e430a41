package store

import "context"

// createTables lays out the persisted state from spec.md §6: documents,
// sections, section_embeddings, framework_clauses, analysis_runs,
// impact_records, all indexed by (tenant_id, ...) per spec.md §4.5.
// Grounded on the donor's createTables in pkg/core/store_init.go: same
// IF NOT EXISTS idiom, same FTS5-over-content-table trigger pattern.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id           TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	doc_kind         TEXT NOT NULL,
	framework        TEXT,
	standard_series  INTEGER,
	standard_part    INTEGER,
	standard_year    INTEGER,
	display_name     TEXT NOT NULL,
	created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
	deleted_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);

CREATE TABLE IF NOT EXISTS sections (
	section_id   TEXT PRIMARY KEY,
	doc_id       TEXT NOT NULL,
	tenant_id    TEXT NOT NULL,
	clause_id    TEXT,
	section_path TEXT NOT NULL,
	heading      TEXT NOT NULL,
	text         TEXT NOT NULL,
	page         INTEGER,
	depth        INTEGER NOT NULL DEFAULT 1,
	cross_refs   TEXT, -- JSON array of strings
	refs         TEXT, -- JSON array of {framework, clause_id}
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (doc_id) REFERENCES documents(doc_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sections_tenant ON sections(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sections_tenant_doc ON sections(tenant_id, doc_id);
CREATE INDEX IF NOT EXISTS idx_sections_tenant_clause ON sections(tenant_id, clause_id);

CREATE TABLE IF NOT EXISTS section_embeddings (
	section_id TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	vector     BLOB NOT NULL,
	FOREIGN KEY (section_id) REFERENCES sections(section_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_section_embeddings_tenant ON section_embeddings(tenant_id);

-- Trigram-tokenized FTS5 index over sections, column-weighted at query
-- time via bm25(sections_fts, 3.0, 2.0, 1.0) to match the
-- 3*sim(clause_id) + 2*sim(heading) + 1*sim(text) formula in spec.md §4.6.
CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
	clause_id, heading, text,
	content='sections', content_rowid='rowid',
	tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS sections_ai AFTER INSERT ON sections BEGIN
	INSERT INTO sections_fts(rowid, clause_id, heading, text)
	VALUES (new.rowid, new.clause_id, new.heading, new.text);
END;
CREATE TRIGGER IF NOT EXISTS sections_ad AFTER DELETE ON sections BEGIN
	INSERT INTO sections_fts(sections_fts, rowid, clause_id, heading, text)
	VALUES ('delete', old.rowid, old.clause_id, old.heading, old.text);
END;
CREATE TRIGGER IF NOT EXISTS sections_au AFTER UPDATE ON sections BEGIN
	INSERT INTO sections_fts(sections_fts, rowid, clause_id, heading, text)
	VALUES ('delete', old.rowid, old.clause_id, old.heading, old.text);
	INSERT INTO sections_fts(rowid, clause_id, heading, text)
	VALUES (new.rowid, new.clause_id, new.heading, new.text);
END;

CREATE TABLE IF NOT EXISTS framework_clauses (
	framework   TEXT NOT NULL,
	clause_id   TEXT NOT NULL,
	title       TEXT NOT NULL,
	criticality TEXT NOT NULL,
	category    TEXT,
	PRIMARY KEY (framework, clause_id)
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id        TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	run_type      TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at  DATETIME,
	total_impacts INTEGER
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_tenant ON analysis_runs(tenant_id);

CREATE TABLE IF NOT EXISTS impact_records (
	impact_id        TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	tenant_id        TEXT NOT NULL,
	clause_id        TEXT NOT NULL,
	change_type      TEXT NOT NULL,
	qsp_section_id   TEXT NOT NULL,
	qsp_doc          TEXT NOT NULL,
	qsp_clause       TEXT,
	heading          TEXT NOT NULL DEFAULT '',
	qsp_text         TEXT NOT NULL,
	qsp_text_full    TEXT NOT NULL,
	similarity       REAL NOT NULL,
	rationale        TEXT NOT NULL,
	reviewed         BOOLEAN NOT NULL DEFAULT 0,
	custom_rationale TEXT,
	created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (run_id, clause_id, qsp_section_id),
	FOREIGN KEY (run_id) REFERENCES analysis_runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_impact_records_run ON impact_records(run_id);
CREATE INDEX IF NOT EXISTS idx_impact_records_tenant ON impact_records(tenant_id);
`

func (s *Store) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	return err
}
