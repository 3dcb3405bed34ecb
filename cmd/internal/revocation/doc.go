// Package revocation tracks invalidated credential fingerprints.
//
// Entries are retained until the underlying credential's expiry instant and
// are safe to forget afterwards. Expiry is checked on read, not only during
// sweeps, so a revoked-then-expired fingerprint is never reported as live
// "not revoked" before its deadline.
//
// The Guard type makes the unavailability policy explicit: when the backing
// store cannot be reached, security-sensitive callers fail closed (treat as
// revoked) unless fail-open is deliberately configured.
package revocation
