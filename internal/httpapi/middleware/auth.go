package middleware

import (
	"net/http"
	"strings"
)

// Keys holds the API keys the monitor accepts. Public keys may read site
// status and stream events; admin keys may also edit the watch list and
// drive the check Trigger.
type Keys struct {
	Public []string
	Admin  []string
}

type access int

const (
	accessNone access = iota
	accessRead
	accessAdmin
)

// grant reports what the presented key may do.
func (k Keys) grant(key string) access {
	if key == "" {
		return accessNone
	}
	for _, a := range k.Admin {
		if a == key {
			return accessAdmin
		}
	}
	for _, p := range k.Public {
		if p == key {
			return accessRead
		}
	}
	return accessNone
}

func presentedKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	// browsers cannot set headers on a websocket handshake
	if websocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("api_key"))
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func deny(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// RequireAny guards the read side of the monitor (site status, results,
// event stream). With no keys configured every request passes.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	if len(keys.Public) == 0 && len(keys.Admin) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys.grant(presentedKey(r)) == accessNone {
				deny(w, http.StatusUnauthorized, `{"error":"monitor api key required"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards watch-list edits and Trigger control. With no admin
// keys configured every request passes.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	if len(keys.Admin) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys.grant(presentedKey(r)) != accessAdmin {
				deny(w, http.StatusForbidden, `{"error":"admin key required to change the watch list or trigger"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
