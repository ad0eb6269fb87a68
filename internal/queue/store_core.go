package queue

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"fieldsync/internal/config"
	"fieldsync/internal/sqlitex"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	now     func() time.Time
	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for scheduling and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the queue database configured in cfg.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath(), opts...)
}

// OpenPath initializes or connects to a queue database at an explicit path.
func OpenPath(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlitex.Open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:      db,
		path:    dbPath,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file backing the store.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// newID returns a ULID so ids sort lexically by creation time.
func (s *Store) newID(at time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		return "", fmt.Errorf("generate item id: %w", err)
	}
	return id.String(), nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sqlitex.ExecWithRetry(ctx, s.db, query, args...)
}
