package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/clubhouse/points-engine/club"
)

type contextKey struct{}

var principalKey contextKey

// FromContext returns the authenticated principal, if any. A zero Principal
// with ok=false means the request is anonymous.
func FromContext(ctx context.Context) (club.Principal, bool) {
	p, ok := ctx.Value(principalKey).(club.Principal)
	return p, ok
}

// Require rejects requests without a valid bearer token.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.principalFromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"missing or invalid token"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), principalKey, principal)))
	})
}

// Optional attaches a principal when a valid token is present and lets
// anonymous requests through. The public catalog uses this to vary
// visibility by caller.
func (m *Manager) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, err := m.principalFromRequest(r); err == nil {
			r = r.WithContext(
				context.WithValue(r.Context(), principalKey, principal))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) principalFromRequest(r *http.Request) (club.Principal, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return club.Principal{}, ErrInvalidToken
	}
	return m.Verify(token)
}
