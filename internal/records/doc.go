// Package records is the SQLite store of local capture data: sessions, their
// pose frames, phase annotations and camera setup configs.
//
// The read side implements the repositories the sync orchestrator consumes.
// The write side (SaveSession, SavePhase, SaveFrames, SaveSetupConfig and the
// deletes) enqueues every mutation so it is replayed against the remote.
package records
