package records

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const component = "records"

// Enqueuer records a local mutation for upload. syncer.Engine satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, entityType queue.EntityType, entityID string, op queue.Operation) (queue.EnqueueResult, error)
}

// Store is the SQLite-backed local record store.
type Store struct {
	db       *sql.DB
	path     string
	now      func() time.Time
	enqueuer Enqueuer
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEnqueuer routes every mutation through e. Without one, writes only
// touch the local database.
func WithEnqueuer(e Enqueuer) Option {
	return func(s *Store) { s.enqueuer = e }
}

// Open initializes or connects to the records database configured in cfg.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RecordsDBPath(), opts...)
}

// OpenPath initializes or connects to a records database at an explicit path.
func OpenPath(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlitex.Open(dbPath)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: dbPath, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := sqlitex.InitSchema(context.Background(), db, sqlitex.Schema{
		SQL:     schemaSQL,
		Version: schemaVersion,
		Hint:    "export your records and delete the database",
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// SetEnqueuer replaces the enqueuer after construction; the engine and the
// store are built from each other's outputs.
func (s *Store) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
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

// Sessions returns the session repository view.
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Phases returns the phase repository view.
func (s *Store) Phases() *Phases { return &Phases{s} }

// SetupConfigs returns the setup config repository view.
func (s *Store) SetupConfigs() *SetupConfigs { return &SetupConfigs{s} }

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func (s *Store) enqueue(ctx context.Context, entityType queue.EntityType, entityID string, op queue.Operation) error {
	if s.enqueuer == nil {
		return nil
	}
	if _, err := s.enqueuer.Enqueue(ctx, entityType, entityID, op); err != nil {
		return fmt.Errorf("enqueue %s %s %s: %w", entityType, entityID, op, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table+" WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", table, id, err)
	}
	return n > 0, nil
}

func (s *Store) updateStatus(ctx context.Context, table, kind, id, status string) error {
	res, err := sqlitex.ExecWithRetry(ctx, s.db, "UPDATE "+table+" SET sync_status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update %s sync status: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func notFound(kind, id string) error {
	return services.Wrap(services.ErrNotFound, component, "get", kind+" "+id, nil)
}

func invalid(operation, message string) error {
	return services.Wrap(services.ErrValidation, component, operation, message, nil)
}

func mapNoRows(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}

func float64Ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

func parseTime(raw string) time.Time {
	t, err := sqlitex.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
