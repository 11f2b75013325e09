package server

import (
	"context"
	"fmt"
	"net/http"

	"canonstore/internal/api"
)

const manualSweepKey = "manual"

func (s *Server) handleAdminSweep(w http.ResponseWriter, r *http.Request) {
	var req api.SweepRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	if req.BatchSize < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("batch_size must be >= 0"), ErrCodeInvalidQuery))
		return
	}
	if !req.DryRun && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	opts := s.service.DefaultSweepOptions()
	opts.DryRun = req.DryRun
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.Stray != nil {
		opts.Stray = *req.Stray
	}

	job := func(ctx context.Context) (SweepResult, error) {
		return s.service.SweepOrphans(ctx, opts)
	}

	var (
		result SweepResult
		err    error
	)
	if s.sweeper != nil {
		key := manualSweepKey
		if opts.DryRun {
			key += "-dry-run"
		}
		result, err = s.sweeper.Do(r.Context(), key, job)
	} else {
		result, err = job(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, r, makeAPIError(http.StatusInternalServerError, "internal", ErrCodeSweepFailed, err))
		return
	}

	s.writeJSON(w, http.StatusOK, sweepResponse(result))
}

func (s *Server) handleAdminSweepStatus(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		s.writeJSON(w, http.StatusOK, api.SweepStatusResponse{Enabled: false})
		return
	}

	status := s.sweeper.Status()
	resp := api.SweepStatusResponse{
		Enabled:   true,
		Running:   status.Running,
		Runs:      status.Runs,
		LastError: status.LastError,
	}
	if !status.NextRunAt.IsZero() {
		next := status.NextRunAt
		resp.NextRunAt = &next
	}
	if !status.LastRunAt.IsZero() {
		last := status.LastRunAt
		resp.LastRunAt = &last
	}
	if status.LastResult != nil {
		last := sweepResponse(*status.LastResult)
		resp.LastResult = &last
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func sweepResponse(result SweepResult) api.SweepResponse {
	return api.SweepResponse{
		RunID:           result.RunID,
		CandidateCount:  result.CandidateCount,
		DeletedCount:    result.DeletedCount,
		SkippedCount:    result.SkippedCount,
		FailedCount:     result.FailedCount,
		ReclaimedBytes:  result.ReclaimedBytes,
		StrayCandidates: result.StrayCandidates,
		StrayDeleted:    result.StrayDeleted,
		DryRun:          result.DryRun,
		StartedAt:       result.StartedAt,
		DurationMillis:  result.Duration.Milliseconds(),
		Errors:          result.Errors,
	}
}
