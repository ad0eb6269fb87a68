// Package syncer drains the sync queue against the remote authority.
//
// An Orchestrator run claims one bounded batch in precedence order, uploads
// each item through the RemoteAPI with a heartbeat kept alive, consults the
// conflict resolver for sessions and phases, and records the retry policy's
// verdict on the queue and on the owning local record. Children of a session
// whose CREATE has not reached the remote are released, uncharged, until the
// parent's next attempt.
//
// State holds the observable run status and fans it out to subscribers.
// Engine is the facade used by local writers, the daemon and the CLI.
package syncer
