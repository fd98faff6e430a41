// Package store implements the Section Store (C5): a tenant-scoped
// persistent index of sections and their vectors, backed by SQLite. It is
// adapted from the donor's pkg/core SQLiteStore — same WAL-mode pragmas,
// mutex-guarded struct, and wrapError convention — generalized from a
// general-purpose vector-DB schema to the compliance-retrieval schema in
// spec.md §3/§6.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/qspcompliance/engine/internal/logging"
	"github.com/qspcompliance/engine/pkg/index"
)

// Store is the tenant-scoped Section Store. All exported methods are safe
// for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	logger logging.Logger

	// docLocks serializes writes on (tenant_id, doc_id), per spec.md §5:
	// "a concurrent re-ingest of the same document takes a per-doc lock;
	// other docs and other tenants are unaffected."
	docLocks sync.Map // map[string]*sync.Mutex

	// cache is the optional in-memory per-tenant vector cache described in
	// spec.md §4.5. Nil disables caching entirely.
	cache *index.TenantCosineIndex
	// cacheDim is the dimension the cache was constructed with; vectors of
	// a different width are never written to it.
	cacheDim int
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithVectorCache enables the per-tenant in-memory cosine cache for
// vectors of the given dimension.
func WithVectorCache(dimension int) Option {
	return func(s *Store) {
		s.cache = index.New(dimension)
		s.cacheDim = dimension
	}
}

// Open creates and initializes a Store backed by the SQLite database at
// path (use ":memory:" for an ephemeral store, matching the donor test
// convention).
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	// _journal_mode=WAL: readers don't block the writer.
	// _busy_timeout=5000: wait up to 5s for a lock instead of failing immediately.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("open", fmt.Errorf("opening database: %w", err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	s.db = db

	// Cascading document deletes (sections, embeddings) depend on this.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, wrapError("open", fmt.Errorf("enabling foreign keys: %w", err))
	}

	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, wrapError("open", fmt.Errorf("creating schema: %w", err))
	}

	s.logger.Info("section store opened", "path", path)
	return s, nil
}

// Close releases the underlying database connection. Subsequent calls to
// any other method return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) docLock(tenantID, docID string) *sync.Mutex {
	key := tenantID + "|" + docID
	m, _ := s.docLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return nil
}
