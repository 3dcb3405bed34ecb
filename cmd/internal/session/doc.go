// Package session implements Ripple's live-session registry.
//
// It maps an authenticated principal to its live connections, enforces the
// per-principal concurrent session cap (oldest-first eviction), tracks
// per-session liveness, and emits edge-triggered events on a principal's
// first session created / last session removed.
//
// The registry is sharded by principal id to keep lock contention low on the
// hottest path (connect/disconnect/touch). No I/O is performed while a shard
// lock is held; eviction victims are returned to the caller, which performs
// the revocation write after the lock is released.
//
// Credential issuance and transport integration are intentionally out of
// scope here.
package session
