package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	addr       string
	sent       [][]byte
	pings      int
	closeCode  int
	closed     bool
	terminated bool
	failSend   bool
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: addr}
}

func (c *fakeConn) Send(payload []byte) error {
	if c.closed || c.terminated || c.failSend {
		return ErrConnClosed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Ping() error {
	if c.closed || c.terminated {
		return ErrConnClosed
	}
	c.pings++
	return nil
}

func (c *fakeConn) CloseWith(code int, _ string) {
	c.closeCode = code
	c.closed = true
}

func (c *fakeConn) Terminate() { c.terminated = true }

func (c *fakeConn) RemoteAddr() string { return c.addr }

// frames decodes everything sent so far and clears the buffer.
func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	c.sent = nil
	return out
}

func newTestSession(addr string) (*Session, *fakeConn) {
	conn := newFakeConn(addr)
	return NewSession(conn), conn
}
