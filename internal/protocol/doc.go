// Package protocol owns the IPC wire contract shared by every layer.
//
// Ownership boundary:
// - error taxonomy (kind, category, recoverability)
// - JSON payload shapes (handshake, command, response, READY data)
// - nonce generation
//
// Framing lives in protocol/frame; the handshake and request/response state
// machine lives in protocol/session.
package protocol
