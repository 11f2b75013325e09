package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"canonstore/internal/api"
	"canonstore/internal/auth"
)

const tokenBodyMaxBytes = 8 << 10

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	if !s.tokens.Enabled() {
		s.writeErrorReq(w, r, http.StatusNotImplemented, apiError{
			status:  http.StatusNotImplemented,
			code:    "not_implemented",
			errCode: ErrCodeNotImplemented,
			err:     auth.ErrNoSigningKey,
		})
		return
	}

	var req api.TokenCreateRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	var ttl time.Duration
	if value := strings.TrimSpace(req.TTL); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid ttl %q", value), ErrCodeInvalidArgument))
			return
		}
		ttl = parsed
	}

	token, claims, err := s.tokens.Issue(req.Admin, ttl)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}
	s.log().Info("token issued", "jti", claims.ID, "admin", claims.Admin, "expires_at", claims.ExpiresAt)
	s.writeJSON(w, http.StatusOK, api.TokenResponse{
		Token:     "Bearer " + token,
		Admin:     claims.Admin,
		ExpiresAt: claims.ExpiresAt,
	})
}

// handleValidateToken accepts the token as a plain text body or an Authorization header.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readTextBody(w, r, tokenBodyMaxBytes)
	if !ok {
		return
	}
	if body == "" {
		body = r.Header.Get("Authorization")
	}
	if body != "" && auth.ExtractBearer(body) == "" {
		body = "Bearer " + body
	}

	claims, err := s.tokens.ParseBearer(body)
	if err != nil {
		if errors.Is(err, auth.ErrNoSigningKey) {
			err = fmt.Errorf("tokens are not enabled")
		}
		s.writeErrorReq(w, r, http.StatusForbidden, forbidden(err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.TokenValidateResponse{Valid: true, Admin: claims.Admin, ExpiresAt: claims.ExpiresAt})
}
