package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tjdeveng/KeepTower-sub010/internal/auth"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

type ctxKey int

const claimsKey ctxKey = iota

// requireAuth validates the bearer token and stashes its claims in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		claims, err := s.issuer.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		// The token must match the live session; a stale token from a
		// previous login is useless after the vault was reopened.
		user, _, open := s.authn.CurrentUser()
		if !open || user != claims.Username {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "session is not open for this user"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// requireAdmin stacks on requireAuth and refuses non-administrators.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims == nil || claims.Role != vault.RoleAdministrator {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "administrator role required"})
			return
		}
		next(w, r)
	})
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
