// Package main hosts the fieldsync CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: status, on-demand sync, manual enqueue, bundle import
// and queue maintenance. Queue commands fall back to opening the SQLite queue
// directly when the daemon is not running.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
