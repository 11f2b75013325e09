package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"canonstore/internal/auth"
)

const adminTokenHeader = "X-Admin-Token"

type authContextKey struct{}

type authPrincipal struct {
	AuthType string
	Admin    bool
	TokenID  string
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// authenticate resolves the caller from request headers. ok is false when no
// credential was presented or none verified.
func (s *Server) authenticate(r *http.Request) (authPrincipal, bool) {
	if s.tokens.Enabled() {
		if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
			claims, err := s.tokens.ParseBearer(raw)
			if err == nil {
				return authPrincipal{AuthType: "jwt", Admin: claims.Admin, TokenID: claims.ID}, true
			}
			s.log().Debug("token rejected", "error", err, "path", r.URL.Path)
		}
	}
	if s.adminTokenHash != "" {
		if candidate := r.Header.Get(adminTokenHeader); candidate != "" && auth.VerifyAdminToken(s.adminTokenHash, candidate) {
			return authPrincipal{AuthType: "admin_token", Admin: true}, true
		}
	}
	if s.openWrites {
		return authPrincipal{AuthType: "loopback", Admin: s.adminTokenHash == ""}, true
	}
	return authPrincipal{}, false
}

// requireWriter guards mutating endpoints. Missing or invalid credentials are 403.
func (s *Server) requireWriter(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.authenticate(r)
		if !ok {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("valid token required")))
			return
		}
		next(w, r.WithContext(contextWithAuthPrincipal(r.Context(), principal)))
	}
}

// requireAdmin guards admin endpoints.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.authenticate(r)
		if !ok || !principal.Admin {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("admin token required")))
			return
		}
		next(w, r.WithContext(contextWithAuthPrincipal(r.Context(), principal)))
	}
}
