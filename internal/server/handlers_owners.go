package server

import (
	"net/http"

	"canonstore/internal/api"
)

func (s *Server) handleListOwners(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	refs, err := s.service.ListOwners(r.Context(), family, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleAttachOwner(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.OwnerAttachRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	ref, err := s.service.AttachOwner(r.Context(), family, id, req.OwnerKind, req.OwnerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleDetachOwner(w http.ResponseWriter, r *http.Request) {
	family, ok := s.pathFamily(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	refID := r.PathValue("ref_id")

	if err := s.service.DetachOwner(r.Context(), family, id, refID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.IDResponse{ID: refID})
}
