// Package transport defines the four-operation channel contract (open,
// read exactly, write all, shutdown) that the session layer is written against.
//
// Ownership boundary:
// - Endpoint and Family, the only place the socket/pipe distinction is visible
// - platform dialing (unix sockets everywhere, named pipes on Windows)
// - backend registry, resolved once at startup by name
//
// Backends live in transport/blocking and transport/async.
package transport
