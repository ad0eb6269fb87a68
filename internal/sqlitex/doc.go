// Package sqlitex holds the SQLite plumbing shared by the queue and the local
// record store: opening a database with WAL pragmas, retrying statements while
// the database is busy, running transactions, versioned schema bootstrapping,
// and the timestamp encoding used in every table.
package sqlitex
