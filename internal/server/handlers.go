// Package server exposes HTTP handlers, including WebSocket upgrades, the
// room listing, health checks, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/pairchat/internal/relay"
)

const snapshotTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// RoomList is the body returned by the room listing endpoint.
type RoomList struct {
	Scope relay.Scope `json:"scope"`
	Rooms []string    `json:"rooms"`
}

// NewWebSocketHandler returns the handler that upgrades requests and hands
// each new connection to hub.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		// The hub launches the pump goroutines once it has the client.
		if !hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// NewRoomsHandler returns the read-only room listing. The optional scope
// query parameter selects "active" (default) or "all".
func NewRoomsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		scope := relay.ParseScope(r.URL.Query().Get("scope"))

		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		rooms, err := hub.Snapshot(ctx, scope)
		if err != nil {
			log.Warn().Err(err).Msg("room snapshot failed")
			http.Error(w, "room listing unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(RoomList{Scope: scope, Rooms: rooms}); err != nil {
			log.Warn().Err(err).Msg("error writing room listing")
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "pairchat server is running!")
}

// TestPageHandler serves an HTML page that joins a room over /ws and shows
// the frames it receives.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		log.Warn().Err(err).Msg("error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>pairchat test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        .system { color: gray; font-style: italic; }
        .error { color: #721c24; }
    </style>
</head>
<body>
    <h1>pairchat</h1>
    <div>
        <input type="text" id="room" placeholder="Room">
        <input type="text" id="name" placeholder="Name">
        <button onclick="join()">Join</button>
    </div>
    <div id="messages"></div>
    <div>
        <input type="text" id="text" placeholder="Type a message...">
        <button onclick="send()">Send</button>
    </div>
    <script>
        const messages = document.getElementById('messages');
        let ws = null;

        function line(text, cls) {
            const el = document.createElement('div');
            if (cls) el.className = cls;
            el.textContent = text;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function connect(onOpen) {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = onOpen;
            ws.onmessage = function(event) {
                const m = JSON.parse(event.data);
                switch (m.type) {
                case 'joined': line('joined ' + m.room + ' as ' + m.you, 'system'); break;
                case 'system': line(m.text, 'system'); break;
                case 'error': line('error: ' + m.reason, 'error'); break;
                case 'msg': line(m.name + ': ' + m.text); break;
                }
            };
            ws.onclose = function(event) { line('connection closed (' + event.code + ')', 'system'); ws = null; };
        }

        function join() {
            const frame = JSON.stringify({
                type: 'join',
                room: document.getElementById('room').value,
                name: document.getElementById('name').value
            });
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(frame);
            } else {
                connect(function() { ws.send(frame); });
            }
        }

        function send() {
            const input = document.getElementById('text');
            if (ws && ws.readyState === WebSocket.OPEN && input.value.trim()) {
                ws.send(JSON.stringify({ type: 'msg', text: input.value }));
                input.value = '';
            }
        }

        document.getElementById('text').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') send();
        });
    </script>
</body>
</html>`
