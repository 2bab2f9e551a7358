// Package server coordinates client registration, room relay, liveness
// sweeps and connection cleanup for pairchat via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/pairchat/internal/relay"
)

// ErrHubStopped is returned by queries made after the hub shut down.
var ErrHubStopped = errors.New("hub stopped")

// Hub owns the relay engine and is the only goroutine that touches it.
// Registration, inbound frames, room listings and liveness ticks are all
// serialized through Run.
type Hub struct {
	clients    map[*Client]bool
	register   chan registration
	unregister chan *Client
	inbound    chan inboundFrame
	queries    chan snapshotQuery
	engine     *relay.Engine
	monitor    *relay.Monitor
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub using the active configuration. The returned Hub does
// nothing until Run is started.
func NewHub() *Hub {
	cfg := currentConfig()
	logger := log.With().Str("component", "relay").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		queries:    make(chan snapshotQuery),
		engine:     relay.NewEngine(logger),
		monitor:    relay.NewMonitor(cfg.PingInterval, logger),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a freshly upgraded client to the hub, which starts its
// pumps. It returns once the event loop has recorded the client, or false
// when the hub is no longer running.
func (h *Hub) Register(client *Client) bool {
	reg := registration{client: client, done: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.ctx.Done():
		return false
	}
	<-reg.done
	return true
}

// Snapshot lists room ids for scope, asking the event loop so the answer is
// consistent with every event processed so far.
func (h *Hub) Snapshot(ctx context.Context, scope relay.Scope) ([]string, error) {
	query := snapshotQuery{scope: scope, reply: make(chan []string, 1)}

	select {
	case h.queries <- query:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for hub")
	}

	select {
	case ids := <-query.reply:
		return ids, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for snapshot")
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// submit forwards an inbound frame to the event loop. It returns false once
// the hub is shutting down.
func (h *Hub) submit(frame inboundFrame) bool {
	select {
	case h.inbound <- frame:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run starts the hub's main event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.monitor.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case reg := <-h.register:
			h.handleRegister(reg.client)
			close(reg.done)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.engine.HandleMessage(frame.client.session, frame.data)

		case query := <-h.queries:
			query.reply <- h.engine.Snapshot(query.scope)

		case <-ticker.C:
			if n := h.monitor.Sweep(h.engine.Sessions()); n > 0 {
				log.Info().Int("terminated", n).Msg("liveness sweep reclaimed connections")
			}
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		log.Warn().Msg("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.engine.Attach(client.session)
	log.Info().
		Str("remote_addr", client.addr).
		Str("conn_id", client.session.ID()).
		Int("clients", clientCount).
		Msg("client registered")

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.engine.HandleClose(client.session)
	client.closed = true
	close(client.send)

	log.Info().
		Str("remote_addr", client.addr).
		Str("conn_id", client.session.ID()).
		Int("clients", clientCount).
		Msg("client unregistered")
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.Terminate()
	}

	log.Info().Int("closed", len(clients)).Msg("closed client connections")
}

// Shutdown stops the event loop (and with it the liveness ticker), closes
// all connections and waits for the client goroutines, giving up after
// timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Msg("initiating hub shutdown")
	h.cancel()

	deadline := time.After(timeout)
	select {
	case <-h.done:
	case <-deadline:
		log.Warn().Msg("hub event loop did not stop before timeout")
		return context.DeadlineExceeded
	}

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		log.Info().Msg("hub shutdown completed successfully")
		return nil
	case <-deadline:
		log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
