// Package services defines shared utilities consumed by the sync orchestrator,
// the queue store, and the remote adapter.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, entity references, run IDs and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the failure taxonomy persisted on queue items (network, validation,
//     conflict, not found, exhausted).
//
// Use these helpers when wiring new sync paths so operational behaviour (error
// handling, observability, retries) stays uniform across the engine.
package services
