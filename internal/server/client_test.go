package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pairchat/internal/relay"
)

func TestNewClientUsesConfig(t *testing.T) {
	resetConfig(t)
	SetConfig(&Config{
		MaxMessageSize: 4096,
		SendBufferSize: 8,
		PingInterval:   2 * time.Second,
	})

	c := NewClient(nil, nil, "192.0.2.1:5000")

	assert.Equal(t, int64(4096), c.maxMessageSize)
	assert.Equal(t, 8, cap(c.send))
	assert.Equal(t, 4*time.Second+writeWait, c.readWait)
	assert.Equal(t, "192.0.2.1:5000", c.RemoteAddr())
	require.NotNil(t, c.Session())
	assert.Same(t, c, c.Session().Conn())
	assert.Equal(t, relay.StateUnjoined, c.Session().State())
}

func TestClientQueuesFramesInOrder(t *testing.T) {
	resetConfig(t)
	c := NewClient(nil, nil, "peer")

	require.NoError(t, c.Send([]byte(`{"type":"msg"}`)))
	require.NoError(t, c.Ping())
	c.CloseWith(relay.ClosePolicyViolation, relay.ReasonRoomFull)

	require.Len(t, c.send, 3)
	first := <-c.send
	assert.Equal(t, frameText, first.kind)
	assert.JSONEq(t, `{"type":"msg"}`, string(first.data))
	assert.Equal(t, framePing, (<-c.send).kind)

	closing := <-c.send
	assert.Equal(t, frameClose, closing.kind)
	assert.Equal(t, relay.ClosePolicyViolation, closing.code)
	assert.Equal(t, relay.ReasonRoomFull, closing.reason)
}

func TestClientRefusesFramesAfterClose(t *testing.T) {
	resetConfig(t)
	c := NewClient(nil, nil, "peer")

	c.CloseWith(relay.ClosePolicyViolation, "")
	assert.ErrorIs(t, c.Send([]byte("late")), relay.ErrConnClosed)
	assert.ErrorIs(t, c.Ping(), relay.ErrConnClosed)

	// A second close is a no-op.
	c.CloseWith(relay.ClosePolicyViolation, "")
	assert.Len(t, c.send, 1)
}

func TestClientSendBufferFull(t *testing.T) {
	resetConfig(t)
	SetConfig(&Config{SendBufferSize: 1})
	c := NewClient(nil, nil, "peer")

	require.NoError(t, c.Send([]byte("one")))
	assert.ErrorIs(t, c.Send([]byte("two")), errSendBufferFull)

	// With no room for the close frame the connection is dropped instead;
	// either way the client stops accepting frames.
	c.CloseWith(relay.ClosePolicyViolation, "")
	assert.ErrorIs(t, c.Send([]byte("three")), relay.ErrConnClosed)
}

func TestIsExpectedCloseError(t *testing.T) {
	assert.True(t, isExpectedCloseError(nil))
	assert.True(t, isExpectedCloseError(errString("read tcp: use of closed network connection")))
	assert.True(t, isExpectedCloseError(errString("websocket: close sent")))
	assert.True(t, isExpectedCloseError(errString("write: broken pipe")))
	assert.False(t, isExpectedCloseError(errString("i/o timeout")))
}

type errString string

func (e errString) Error() string { return string(e) }
