package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument      = 1000
	ErrCodeInvalidJSON          = 1001
	ErrCodeRequestTooLarge      = 1002
	ErrCodeInvalidQuery         = 1003
	ErrCodeInvalidID            = 1004
	ErrCodeMissingRequired      = 1009
	ErrCodeUnsupportedMediaType = 1015
	ErrCodeMalformedContent     = 1016
	ErrCodeInvalidBatchSize     = 1017
	ErrCodeFetchFailed          = 1018
	ErrCodeInvalidOwner         = 1019

	// Domain state (2xxx)
	ErrCodeBlobNotFound     = 2001
	ErrCodeOwnerRefNotFound = 2002
	ErrCodeFamilyNotFound   = 2003
	ErrCodeOwnerExists      = 2101
	ErrCodeConflict         = 2102
	ErrCodeItemReferenced   = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeSweepFailed    = 4003
	ErrCodeNotImplemented = 4005

	// Dependencies (5xxx)
	ErrCodeObjectStoreRejected    = 5001
	ErrCodeObjectStoreUnavailable = 5002
	ErrCodeObjectMissing          = 5003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeBlobNotFound
	case 409:
		return ErrCodeConflict
	case 422:
		return ErrCodeUnsupportedMediaType
	case 424:
		return ErrCodeObjectStoreRejected
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	case 502:
		return ErrCodeObjectStoreUnavailable
	default:
		return 0
	}
}
