package web

import (
	"context"
	"encoding/json"
	"net/http"
)

// Identity headers set by the external session middleware in front of the
// orchestrator. The orchestrator trusts them as-is.
const (
	headerSubject = "X-Auth-Subject"
	headerRole    = "X-Auth-Role"

	roleAdmin = "admin"
	roleUser  = "user"
)

type contextKey string

const identityKey contextKey = "identity"

// identity is the authenticated caller for one request.
type identity struct {
	Subject string
	Role    string
}

func identityFrom(r *http.Request) identity {
	id, _ := r.Context().Value(identityKey).(identity)
	return id
}

// requireSubject rejects requests without an authenticated subject.
func (s *Server) requireSubject(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := r.Header.Get(headerSubject)
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		role := r.Header.Get(headerRole)
		if role != roleAdmin {
			role = roleUser
		}
		ctx := context.WithValue(r.Context(), identityKey, identity{Subject: subject, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects requests whose role is not admin.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireSubject(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r).Role != roleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
