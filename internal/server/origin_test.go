package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestNewOriginAllowList(t *testing.T) {
	list, kept := newOriginAllowList([]string{
		"HTTPS://Chat.Example",
		"  http://localhost:3000 ",
		"",
		"localhost",
	})

	assert.False(t, list.any)
	assert.Equal(t, []string{"https://chat.example", "http://localhost:3000"}, kept)
	assert.True(t, list.permits("https://CHAT.example"))
	assert.False(t, list.permits("https://chat.example:8443"))
	assert.False(t, list.permits("localhost"))

	list, kept = newOriginAllowList([]string{"*"})
	assert.True(t, list.any)
	assert.Equal(t, []string{"*"}, kept)
	assert.True(t, list.permits("http://anything.example"))
	assert.False(t, list.permits("garbage"))

	list, kept = newOriginAllowList(nil)
	assert.False(t, list.any)
	assert.Nil(t, kept)
	assert.False(t, list.permits("http://localhost:8080"))
}

func TestCheckOrigin(t *testing.T) {
	resetConfig(t)
	SetConfig(&Config{AllowedOrigins: []string{"https://chat.example"}})

	cases := []struct {
		origin string
		want   bool
	}{
		{origin: "https://chat.example", want: true},
		{origin: "HTTPS://CHAT.EXAMPLE", want: true},
		{origin: "http://chat.example", want: false},
		{origin: "https://chat.example:8443", want: false},
		{origin: "", want: false},
		{origin: "garbage", want: false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, checkOrigin(requestWithOrigin(tc.origin)), "origin %q", tc.origin)
	}

	SetConfig(&Config{AllowedOrigins: []string{"*"}})
	assert.True(t, checkOrigin(requestWithOrigin("http://anything.example")))
	assert.False(t, checkOrigin(requestWithOrigin("")))
}

func TestApplyCORS(t *testing.T) {
	resetConfig(t)
	SetConfig(&Config{AllowedOrigins: []string{"https://chat.example"}})

	t.Run("allowed origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		applyCORS(w, requestWithOrigin("https://chat.example"))

		assert.Equal(t, "https://chat.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("other origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		applyCORS(w, requestWithOrigin("https://elsewhere.example"))
		assert.Empty(t, w.Header())
	})

	t.Run("no origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		applyCORS(w, requestWithOrigin(""))
		assert.Empty(t, w.Header())
	})
}
