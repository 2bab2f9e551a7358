package relay

import (
	"time"

	"github.com/rs/zerolog"
)

// Engine drives the per-connection state machine. Every method must be
// called from the same goroutine.
type Engine struct {
	registry *Registry
	sessions map[*Session]struct{}
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the source of chat message timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry: NewRegistry(logger),
		sessions: make(map[*Session]struct{}),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the room registry backing the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Attach starts tracking s as an open connection.
func (e *Engine) Attach(s *Session) {
	e.sessions[s] = struct{}{}
	e.logger.Debug().
		Str("conn_id", s.id).
		Str("remote_addr", s.remoteAddr()).
		Int("open", len(e.sessions)).
		Msg("session attached")
}

// Sessions returns the currently open sessions.
func (e *Engine) Sessions() []*Session {
	out := make([]*Session, 0, len(e.sessions))
	for s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// Snapshot lists room ids for scope; see Registry.Snapshot.
func (e *Engine) Snapshot(scope Scope) []string {
	return e.registry.Snapshot(scope)
}

// HandleMessage processes one raw inbound frame from s. Frames that do not
// parse, carry no type, or carry an unknown type are dropped.
func (e *Engine) HandleMessage(s *Session, raw []byte) {
	if s.state == StateClosed || s.rejected {
		return
	}

	in, err := decodeInbound(raw)
	if err != nil {
		e.logger.Debug().Err(err).Str("conn_id", s.id).Msg("ignoring malformed frame")
		return
	}

	switch in.Type {
	case TypeJoin:
		e.join(s, in.Room, in.Name)
	case TypeMsg:
		e.send(s, in.Text)
	default:
		e.logger.Debug().Str("conn_id", s.id).Str("type", in.Type).Msg("ignoring frame")
	}
}

// HandleClose runs the close transition for s. Calling it again is a no-op.
func (e *Engine) HandleClose(s *Session) {
	if s.state == StateClosed {
		return
	}
	if s.state == StateJoined {
		e.leave(s)
	}
	s.state = StateClosed
	delete(e.sessions, s)
	e.logger.Debug().
		Str("conn_id", s.id).
		Int("open", len(e.sessions)).
		Msg("session closed")
}

func (e *Engine) join(s *Session, rawRoom, rawName string) {
	room := NormalizeRoom(rawRoom)
	if room == "" {
		e.reply(s, newError(ReasonInvalidRoom))
		return
	}
	name := NormalizeName(rawName)

	if s.state == StateJoined && s.room != room {
		e.leave(s)
	}

	if e.registry.Join(room, s) == Full {
		e.logger.Info().Str("conn_id", s.id).Str("room", room).Msg("join rejected, room full")
		e.reply(s, newError(ReasonRoomFull))
		s.rejected = true
		s.conn.CloseWith(ClosePolicyViolation, ReasonRoomFull)
		return
	}

	s.room = room
	s.name = name
	s.state = StateJoined
	e.logger.Info().
		Str("conn_id", s.id).
		Str("room", room).
		Str("name", name).
		Int("members", e.registry.Members(room)).
		Msg("joined room")

	e.reply(s, newJoined(room, name))
	e.broadcast(room, joinedNotice(name), s)
}

func (e *Engine) send(s *Session, rawText string) {
	if s.state != StateJoined {
		return
	}
	text, ok := NormalizeText(rawText)
	if !ok {
		return
	}

	payload, err := encode(ChatMessage{
		Type: TypeMsg,
		Name: s.name,
		Text: text,
		TS:   e.now().UnixMilli(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("conn_id", s.id).Msg("encoding chat message")
		return
	}

	if err := deliver(s, payload); err != nil {
		e.logger.Warn().Err(err).Str("conn_id", s.id).Msg("echo failed")
	}
	e.registry.Broadcast(s.room, payload, s)
	e.registry.Touch(s.room)
}

// leave removes a joined session from its room and tells the remaining
// member, if any.
func (e *Engine) leave(s *Session) {
	room, name := s.room, s.name
	remaining := e.registry.Leave(room, s)
	s.room = ""
	s.state = StateUnjoined

	e.logger.Info().
		Str("conn_id", s.id).
		Str("room", room).
		Int("members", remaining).
		Msg("left room")

	if remaining > 0 {
		e.broadcast(room, leftNotice(name), nil)
	}
}

func (e *Engine) reply(s *Session, v any) {
	payload, err := encode(v)
	if err != nil {
		e.logger.Error().Err(err).Str("conn_id", s.id).Msg("encoding reply")
		return
	}
	if err := deliver(s, payload); err != nil {
		e.logger.Warn().Err(err).Str("conn_id", s.id).Msg("reply failed")
	}
}

func (e *Engine) broadcast(room string, v any, exclude *Session) {
	payload, err := encode(v)
	if err != nil {
		e.logger.Error().Err(err).Str("room", room).Msg("encoding broadcast")
		return
	}
	e.registry.Broadcast(room, payload, exclude)
}
