package queue

import (
	"context"
	_ "embed"

	"fieldsync/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to clear their queue database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = sqlitex.ErrSchemaMismatch

func (s *Store) initSchema(ctx context.Context) error {
	return sqlitex.InitSchema(ctx, s.db, sqlitex.Schema{
		SQL:     schemaSQL,
		Version: schemaVersion,
		Hint:    "run 'fieldsync queue clear --all' or delete the database",
	})
}
