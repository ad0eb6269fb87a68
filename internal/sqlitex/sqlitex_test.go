package sqlitex_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/sqlitex"
)

const testSchema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);
CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT NOT NULL);
`

func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := sqlitex.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestInitSchemaCreatesAndVerifies(t *testing.T) {
	db, path := openTestDB(t)
	ctx := context.Background()
	schema := sqlitex.Schema{SQL: testSchema, Version: 1, Hint: "delete the database"}

	if err := sqlitex.InitSchema(ctx, db, schema); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := sqlitex.InitSchema(ctx, db, schema); err != nil {
		t.Fatalf("second InitSchema should be a no-op, got %v", err)
	}
	_ = db.Close()

	reopened, err := sqlitex.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	schema.Version = 2
	err = sqlitex.InitSchema(ctx, reopened, schema)
	if !errors.Is(err, sqlitex.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	if err := sqlitex.InitSchema(ctx, db, sqlitex.Schema{SQL: testSchema, Version: 1}); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	boom := errors.New("boom")
	err := sqlitex.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO notes (id, body) VALUES ('a', 'x')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := sqlitex.RetryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("constraint failed")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single attempt, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = sqlitex.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after retries, got calls=%d err=%v", calls, err)
	}
}

func TestTimeRoundTripAndPlaceholders(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 0, 1500, time.UTC)
	parsed, err := sqlitex.ParseTime(sqlitex.FormatTime(now))
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("time round trip: got %v err=%v", parsed, err)
	}
	if legacy, err := sqlitex.ParseTime("2024-05-01 12:30:00"); err != nil || legacy.Hour() != 12 {
		t.Fatalf("expected CURRENT_TIMESTAMP form to parse, got %v err=%v", legacy, err)
	}
	if got := sqlitex.Placeholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders %q", got)
	}
	if sqlitex.NullableString("") != nil || sqlitex.NullableTime(nil) != nil {
		t.Fatal("expected nil for empty values")
	}
}
