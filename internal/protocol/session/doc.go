// Package session owns one physical streaming connection attempt and the
// policy that decides what happens after it.
//
// Ownership boundary:
// - response/error classification into a single Outcome per attempt
// - idle watchdog (rearmed on every inbound chunk)
// - backoff table shared across reconnect attempts
// - HTTP opener and its transport security settings
//
// The reconnect loop itself lives in internal/engine.
package session
