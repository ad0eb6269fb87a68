// Package queue persists pending sync work in SQLite and exposes helpers for
// driving its lifecycle.
//
// Each local mutation becomes at most one non-terminal item per entity;
// repeated mutations coalesce in place and a mutation arriving mid-upload
// flags the item superseded so it is requeued afterwards. ClaimBatch hands out
// work in an explicit precedence order (session create, session update,
// frames, phases, setup configs, session delete) inside a single UPDATE so two
// runs never claim the same item. Heartbeats let a later run reclaim items a
// cancelled run left behind.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
