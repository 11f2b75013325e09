package server

import (
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(); err != nil {
		s.writeErrorReq(w, r, http.StatusServiceUnavailable, makeAPIError(http.StatusServiceUnavailable, "unavailable", ErrCodeStoreFailure, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
