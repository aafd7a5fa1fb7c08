// Package syncer contains the synchronization core: the cursor-based delta
// engine for attractions and their tombstones, the hybrid bulk/delta review
// synchronizer, and the top-level orchestrator exposing a single observable
// state machine.
//
// The cache is the only thing the UI reads; every engine here follows the
// same rule: a cursor is advanced only after the fetch and merge behind it
// completed without a fatal error, so a failed sync is always safely
// retryable.
package syncer
