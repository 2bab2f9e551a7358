package relay

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeInterval is how often the Monitor sweeps open connections.
const DefaultProbeInterval = 30 * time.Second

// Monitor reclaims connections that stopped answering pings. A connection
// that misses one full interval is terminated on the following sweep, so a
// dead peer holds its room slot for at most two intervals.
type Monitor struct {
	Interval time.Duration
	logger   zerolog.Logger
}

func NewMonitor(interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{Interval: interval, logger: logger}
}

// Sweep runs one liveness round over sessions and returns how many were
// terminated. Terminated connections are not probed; their close transition
// arrives later through the transport.
func (m *Monitor) Sweep(sessions []*Session) int {
	terminated := 0
	for _, s := range sessions {
		if s.conn == nil || s.state == StateClosed {
			continue
		}
		if !s.alive.Swap(false) {
			m.logger.Info().
				Str("conn_id", s.id).
				Str("remote_addr", s.remoteAddr()).
				Msg("no pong since last sweep, terminating")
			s.conn.Terminate()
			terminated++
			continue
		}
		if err := s.conn.Ping(); err != nil {
			m.logger.Debug().Err(err).Str("conn_id", s.id).Msg("ping failed")
		}
	}
	return terminated
}
