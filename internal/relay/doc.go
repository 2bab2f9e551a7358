// Package relay implements the two-party room engine for pairchat.
//
// A Registry maps room ids to at most two member sessions and remembers every
// room ever joined. The Engine runs the per-connection state machine
// (join, msg, close) on top of it, and the Monitor reclaims connections that
// stopped answering liveness probes.
//
// Nothing in this package is safe for concurrent use. Callers confine every
// Engine, Registry and Monitor call to a single goroutine; server.Hub does
// this with its event loop.
package relay
