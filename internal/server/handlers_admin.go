package server

import (
	"fmt"
	"net/http"
	"strings"

	"docvault/internal/auth"
)

// requireAdmin guards destructive routes. Without a configured token hash
// the server relies on listening on loopback only.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminTokenHash == "" {
			next(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(auth.HeaderName))
		if token == "" {
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, kindUnauthorized, ErrCodeUnauthorized, fmt.Errorf("admin token required")))
			return
		}
		if !auth.VerifyToken(s.adminTokenHash, token) {
			s.writeErrorReq(w, r, http.StatusForbidden, makeAPIError(http.StatusForbidden, kindForbidden, ErrCodeForbidden, fmt.Errorf("invalid admin token")))
			return
		}
		next(w, r)
	}
}
