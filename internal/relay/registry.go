package relay

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MaxMembers is the capacity of every room.
const MaxMembers = 2

// JoinResult is the outcome of Registry.Join.
type JoinResult int

const (
	Accepted JoinResult = iota
	Full
)

func (r JoinResult) String() string {
	if r == Full {
		return "full"
	}
	return "accepted"
}

// Scope selects which rooms a snapshot lists.
type Scope string

const (
	// ScopeActive lists rooms with at least one member.
	ScopeActive Scope = "active"
	// ScopeAll lists every room joined since the process started.
	ScopeAll Scope = "all"
)

// ParseScope maps a query value to a Scope. Anything other than "all"
// selects the active view.
func ParseScope(value string) Scope {
	if Scope(value) == ScopeAll {
		return ScopeAll
	}
	return ScopeActive
}

// Registry owns the room -> members mapping. Rooms leave the live map as
// soon as they empty out but stay in the history, which is never pruned.
//
// Activity is a logical clock rather than wall time so that two events in
// the same nanosecond still order strictly.
type Registry struct {
	rooms    map[string]map[*Session]struct{}
	history  map[string]struct{}
	activity map[string]uint64
	clock    uint64
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:    make(map[string]map[*Session]struct{}),
		history:  make(map[string]struct{}),
		activity: make(map[string]uint64),
		logger:   logger,
	}
}

// Join adds s to roomID unless the room is at capacity. A session that is
// already a member is accepted again without counting twice.
func (r *Registry) Join(roomID string, s *Session) JoinResult {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Session]struct{}, MaxMembers)
	}
	if _, already := members[s]; !already && len(members) >= MaxMembers {
		return Full
	}

	members[s] = struct{}{}
	r.rooms[roomID] = members
	r.history[roomID] = struct{}{}
	r.Touch(roomID)
	return Accepted
}

// Leave removes s from roomID and returns how many members remain. An empty
// room is dropped from the live map.
func (r *Registry) Leave(roomID string, s *Session) int {
	members, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		r.logger.Debug().Str("room", roomID).Msg("room retired from active view")
		return 0
	}
	r.Touch(roomID)
	return len(members)
}

// Touch marks roomID as the most recently active room.
func (r *Registry) Touch(roomID string) {
	r.clock++
	r.activity[roomID] = r.clock
}

// Members returns the number of sessions in roomID.
func (r *Registry) Members(roomID string) int {
	return len(r.rooms[roomID])
}

// Has reports whether s is a member of roomID.
func (r *Registry) Has(roomID string, s *Session) bool {
	_, ok := r.rooms[roomID][s]
	return ok
}

// Snapshot lists room ids for scope, most recently active first. Rooms that
// were never stamped sort last; equal stamps fall back to the id.
func (r *Registry) Snapshot(scope Scope) []string {
	var ids []string
	if scope == ScopeAll {
		ids = make([]string, 0, len(r.history))
		for id := range r.history {
			ids = append(ids, id)
		}
	} else {
		ids = make([]string, 0, len(r.rooms))
		for id, members := range r.rooms {
			if len(members) > 0 {
				ids = append(ids, id)
			}
		}
	}

	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(r.activity[b], r.activity[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

// Broadcast delivers payload to every member of roomID except exclude and
// returns the number of successful deliveries. A failing member is logged
// and skipped.
func (r *Registry) Broadcast(roomID string, payload []byte, exclude *Session) int {
	delivered := 0
	for member := range r.rooms[roomID] {
		if member == exclude {
			continue
		}
		if err := deliver(member, payload); err != nil {
			r.logger.Warn().Err(err).
				Str("room", roomID).
				Str("conn_id", member.id).
				Msg("delivery failed, skipping member")
			continue
		}
		delivered++
	}
	return delivered
}

func deliver(s *Session, payload []byte) error {
	if s.conn == nil || s.state == StateClosed {
		return ErrConnClosed
	}
	return errors.Wrapf(s.conn.Send(payload), "send to %s", s.remoteAddr())
}
