// Package auth gates the admin surface.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Check reports whether a request may run admin commands.
type Check func(r *http.Request) bool

// Deny rejects everything. It is used when no admin token is configured.
func Deny(*http.Request) bool { return false }

// BearerToken accepts requests carrying token as a bearer credential or in
// the "token" query parameter. An empty token denies everything.
func BearerToken(token string) Check {
	token = strings.TrimSpace(token)
	if token == "" {
		return Deny
	}
	want := hashToken(token)
	return func(r *http.Request) bool {
		got := TokenFromRequest(r)
		if got == "" {
			return false
		}
		h := hashToken(got)
		return subtle.ConstantTimeCompare(h[:], want[:]) == 1
	}
}

// TokenFromRequest extracts the presented credential, if any.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(rest)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Require rejects requests that fail check with a JSON 401.
func Require(check Check, next http.Handler) http.Handler {
	if check == nil {
		check = Deny
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !check(r) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("WWW-Authenticate", `Bearer realm="bossspawner"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), clientAddr(r))))
	})
}

func hashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

func clientAddr(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
