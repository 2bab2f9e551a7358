// Package testhelpers provides common utilities for exercising a running
// pairchat server from tests.
//
// It starts a hub plus router behind httptest, dials websocket clients with
// an allowed Origin, and reads or writes relay frames with deadlines so a
// missing frame fails the test instead of hanging it.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pairchat/internal/relay"
	"github.com/Tyrowin/pairchat/internal/server"
)

// TestOrigin is allowed by the default configuration.
const TestOrigin = "http://localhost:8080"

// DefaultReadTimeout bounds every ReadFrame call.
const DefaultReadTimeout = 2 * time.Second

// TestServer is a running hub with its HTTP routes.
type TestServer struct {
	*httptest.Server
	Hub   *server.Hub
	WSURL string
}

// StartServer applies the default configuration, adjusted by customize,
// and starts a hub and HTTP server that are torn down when the test ends.
func StartServer(t *testing.T, customize func(cfg *server.Config)) *TestServer {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)

	hub := server.NewHub()
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
		server.SetConfig(nil)
	})

	return &TestServer{
		Server: ts,
		Hub:    hub,
		WSURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// Config returns the configuration the server is running with.
func (s *TestServer) Config() server.Config {
	return server.CurrentConfig()
}

// Dial opens a websocket to the test server with an allowed Origin.
func (s *TestServer) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(s.WSURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Join sends a join frame.
func Join(t *testing.T, conn *websocket.Conn, room, name string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": relay.TypeJoin,
		"room": room,
		"name": name,
	}))
}

// SendText sends a chat frame.
func SendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": relay.TypeMsg,
		"text": text,
	}))
}

// ReadFrame reads one JSON frame, failing the test after DefaultReadTimeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame), "frame %q", data)
	return frame
}

// JoinAndWait joins room and returns the joined acknowledgement.
func JoinAndWait(t *testing.T, conn *websocket.Conn, room, name string) map[string]any {
	t.Helper()
	Join(t, conn, room, name)
	frame := ReadFrame(t, conn)
	require.Equal(t, relay.TypeJoined, frame["type"], "unexpected frame %v", frame)
	return frame
}

// ExpectNoFrame fails if a data frame arrives within timeout. A timed out
// read leaves the connection unusable, so this must be its last read.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got %s", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of frame: %v", err)
}

// ExpectClose reads until the connection closes and returns the close code.
func ExpectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return closeErr.Code
		}
		return websocket.CloseAbnormalClosure
	}
}

// GetRooms fetches the room listing for scope ("" for the default).
func (s *TestServer) GetRooms(t *testing.T, scope string) server.RoomList {
	t.Helper()
	list, err := s.FetchRooms(scope)
	require.NoError(t, err)
	return list
}

// FetchRooms is GetRooms without a *testing.T, for polling conditions that
// run off the test goroutine.
func (s *TestServer) FetchRooms(scope string) (server.RoomList, error) {
	var list server.RoomList

	url := s.URL + "/rooms"
	if scope != "" {
		url += "?scope=" + scope
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return list, errors.Wrap(err, "fetching rooms")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return list, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&list)
	return list, errors.Wrap(err, "decoding rooms")
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)

	return resp
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, DefaultReadTimeout, 10*time.Millisecond, msg)
}
