package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// IDResponse carries the id of a single stored or deleted item.
type IDResponse struct {
	ID string `json:"id"`
}

// IDsResponse carries ids of a batch upload, in input order.
type IDsResponse struct {
	IDs []string `json:"id"`
}

// OwnerAttachRequest links an external owner to a stored item.
type OwnerAttachRequest struct {
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
}

// SweepRequest triggers an orphan sweep.
type SweepRequest struct {
	DryRun    bool  `json:"dry_run"`
	BatchSize int   `json:"batch_size,omitempty"`
	Stray     *bool `json:"stray,omitempty"`
}

// SweepResponse reports one reconciler run.
type SweepResponse struct {
	RunID           string    `json:"run_id"`
	CandidateCount  int       `json:"candidate_count"`
	DeletedCount    int       `json:"deleted_count"`
	SkippedCount    int       `json:"skipped_count"`
	FailedCount     int       `json:"failed_count"`
	ReclaimedBytes  int64     `json:"reclaimed_bytes"`
	StrayCandidates int       `json:"stray_candidates"`
	StrayDeleted    int       `json:"stray_deleted"`
	DryRun          bool      `json:"dry_run"`
	StartedAt       time.Time `json:"started_at"`
	DurationMillis  int64     `json:"duration_ms"`
	Errors          []string  `json:"errors,omitempty"`
}

// SweepStatusResponse describes the scheduler state.
type SweepStatusResponse struct {
	Enabled    bool           `json:"enabled"`
	Running    bool           `json:"running"`
	Runs       int            `json:"runs"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
	LastResult *SweepResponse `json:"last_result,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

// TokenCreateRequest asks for a new API token.
type TokenCreateRequest struct {
	Admin bool   `json:"admin"`
	TTL   string `json:"ttl,omitempty"`
}

// TokenResponse returns an issued token in Authorization header form.
type TokenResponse struct {
	Token     string    `json:"token"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenValidateResponse reports a verified token.
type TokenValidateResponse struct {
	Valid     bool      `json:"valid"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
}
