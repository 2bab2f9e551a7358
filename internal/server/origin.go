// Package server decides which browser origins may open websockets or read
// the JSON endpoints.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const anyOrigin = "*"

// originAllowList holds origins in canonical scheme://host form.
type originAllowList struct {
	any     bool
	origins map[string]struct{}
}

// newOriginAllowList builds the allow-list for configured and returns the
// entries it kept, canonicalised and in their original order. Blank and
// unparsable entries are dropped.
func newOriginAllowList(configured []string) (originAllowList, []string) {
	list := originAllowList{origins: make(map[string]struct{}, len(configured))}
	var kept []string

	for _, entry := range configured {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			continue
		case entry == anyOrigin:
			list.any = true
			kept = append(kept, anyOrigin)
			continue
		}

		origin, ok := canonicalOrigin(entry)
		if !ok {
			log.Warn().Str("origin", entry).Msg("ignoring invalid origin in configuration")
			continue
		}
		list.origins[origin] = struct{}{}
		kept = append(kept, origin)
	}
	return list, kept
}

// canonicalOrigin lowercases scheme and host and drops everything else. A
// value without both is not an origin.
func canonicalOrigin(value string) (string, bool) {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (l originAllowList) permits(origin string) bool {
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	if l.any {
		return true
	}
	_, ok = l.origins[canonical]
	return ok
}

// permittedOrigin returns the request's Origin header and whether the active
// configuration admits it. Requests without an Origin are never admitted.
func permittedOrigin(r *http.Request) (string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return "", false
	}

	configMu.RLock()
	list := activeOrigins
	configMu.RUnlock()

	return origin, list.permits(origin)
}

func checkOrigin(r *http.Request) bool {
	origin, ok := permittedOrigin(r)
	if !ok {
		log.Info().Str("origin", origin).Str("remote_addr", r.RemoteAddr).Msg("blocked websocket connection from disallowed origin")
	}
	return ok
}

// applyCORS lets permitted browser origins read JSON endpoints.
func applyCORS(w http.ResponseWriter, r *http.Request) {
	origin, ok := permittedOrigin(r)
	if !ok {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Add("Vary", "Origin")
}
