// Package server defines the frame types queued for the write pump and
// utility helpers that are reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/pairchat/internal/relay"
)

type frameKind int

const (
	frameText frameKind = iota
	framePing
	frameClose
)

// outbound is one unit of work for a client's write pump. Pings and close
// frames travel through the same queue as text so that they keep their
// order relative to already queued messages.
type outbound struct {
	kind   frameKind
	data   []byte
	code   int
	reason string
}

// registration asks the hub loop to adopt client and closes done once the
// client is recorded.
type registration struct {
	client *Client
	done   chan struct{}
}

// inboundFrame carries a raw client frame from a read pump to the hub.
type inboundFrame struct {
	client *Client
	data   []byte
}

// snapshotQuery asks the hub loop for a room listing.
type snapshotQuery struct {
	scope relay.Scope
	reply chan []string
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
