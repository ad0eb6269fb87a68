// Package trigger decides when the sync orchestrator runs.
//
// A Gate combines three sources: connectivity transitions, a periodic timer
// whose interval follows the network class, and manual Trigger calls. Runs go
// through a singleflight group, so triggers that arrive during a run join it
// instead of queueing another.
package trigger
