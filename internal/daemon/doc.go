// Package daemon coordinates the long-running fieldsync process.
//
// It wires the queue and records stores, the sync engine, the trigger gate
// and the metrics endpoint into a single lifecycle with flock-based locking so
// only one process drains a given queue file. The daemon also exposes the
// queue maintenance helpers the IPC server forwards to: listing, retrying
// abandoned items, purging, health checks and bundle import.
//
// Keep orchestration logic here; sync semantics live in internal/syncer.
package daemon
