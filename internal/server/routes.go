package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Uploads.
	mux.HandleFunc("POST /storage/{family}/item", s.requireWriter(s.handleUploadItem))
	mux.HandleFunc("POST /storage/{family}/item_multi", s.requireWriter(s.handleUploadMulti))
	mux.HandleFunc("POST /storage/{family}/item_from_web", s.requireWriter(s.handleUploadFromWeb))
	mux.HandleFunc("POST /storage/{family}/item_from_web_multi", s.requireWriter(s.handleUploadFromWebMulti))

	// Items.
	mux.HandleFunc("GET /storage/{family}/items", s.handleListItems)
	mux.HandleFunc("GET /storage/{family}/item/{id}", s.handleGetItem)
	mux.HandleFunc("GET /storage/{family}/item/{id}/content", s.handleGetItemContent)
	mux.HandleFunc("DELETE /storage/{family}/item/{id}", s.requireWriter(s.handleDeleteItem))

	// Owner references.
	mux.HandleFunc("GET /storage/{family}/item/{id}/owners", s.handleListOwners)
	mux.HandleFunc("POST /storage/{family}/item/{id}/owners", s.requireWriter(s.handleAttachOwner))
	mux.HandleFunc("DELETE /storage/{family}/item/{id}/owners/{ref_id}", s.requireWriter(s.handleDetachOwner))

	// Admin.
	mux.HandleFunc("POST /admin/sweep", s.requireAdmin(s.handleAdminSweep))
	mux.HandleFunc("GET /admin/sweep/status", s.requireAdmin(s.handleAdminSweepStatus))

	// Tokens.
	mux.HandleFunc("POST /auth/create_token", s.requireAdmin(s.handleCreateToken))
	mux.HandleFunc("POST /auth/validate_token", s.handleValidateToken)

	return mux
}
