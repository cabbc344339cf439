// Package session owns the handshake and request/response state machine and
// the retry engine that wraps connection establishment.
//
// Ownership boundary:
// - connect: endpoint choice, transport open, handshake, READY
// - one command in flight, nonce correlation, ERROR mapping
// - ping/pong and peer close handling on the read path
// - backoff arithmetic and the caller-driven Retry loop
//
// All logic here is written against transport.Conn and runs unchanged on
// every backend.
package session
