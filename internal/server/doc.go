// Package server implements the HTTP and WebSocket transport for pairchat.
//
// The Hub event loop owns a relay.Engine and feeds it every connection
// event, so room state never needs a lock. Client adapts a gorilla websocket
// connection to relay.Conn with a read pump, a write pump and a bounded send
// queue. The remaining files cover configuration, origin checks, routing
// and server lifecycle.
package server
