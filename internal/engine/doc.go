// Package engine owns the reconnect loop around stream sessions.
//
// One Engine consumes one stream at a time. Each attempt runs a fresh
// session.Session; its outcome is fed through session.Policy and the engine
// retries immediately, waits, stops on cancellation, or returns a
// *FatalError. There is no attempt cap.
package engine
