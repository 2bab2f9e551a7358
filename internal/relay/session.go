package relay

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ClosePolicyViolation is the websocket close code sent when a join is
// rejected because the room already holds two members.
const ClosePolicyViolation = 1008

// ErrConnClosed is returned by Conn.Send once the connection stopped
// accepting frames.
var ErrConnClosed = errors.New("connection is not open")

// Conn is the transport side of a session. Implementations must not block:
// Send and Ping enqueue, CloseWith schedules a graceful close after already
// queued frames, Terminate drops the connection immediately.
type Conn interface {
	Send(payload []byte) error
	Ping() error
	CloseWith(code int, reason string)
	Terminate()
	RemoteAddr() string
}

// State is the position of a session in the relay state machine.
type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the relay's bookkeeping for one connection. It is created when
// the transport accepts a connection and lives until the close transition.
type Session struct {
	id    string
	conn  Conn
	room  string
	name  string
	state State

	// rejected is set once a join was refused with room_full and the close
	// is in flight; later frames from the peer are ignored.
	rejected bool

	alive atomic.Bool
}

// NewSession attaches a fresh session with a generated id to conn.
func NewSession(conn Conn) *Session {
	s := &Session{
		id:    uuid.NewString(),
		conn:  conn,
		name:  DefaultName,
		state: StateUnjoined,
	}
	s.alive.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Conn() Conn { return s.conn }

// Room returns the room the session currently occupies, or "".
func (s *Session) Room() string { return s.room }

func (s *Session) Name() string { return s.name }

func (s *Session) State() State { return s.state }

// MarkAlive records a liveness acknowledgement. It is the only Session
// method that may be called off the event loop (from a pong handler).
func (s *Session) MarkAlive() {
	s.alive.Store(true)
}

// Alive reports whether a pong arrived since the last sweep.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

func (s *Session) remoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}
