package analyses

import "errors"

var ErrNotFound = errors.New("not found")

// ErrAnalysisInProgress is returned when another request holding the same
// idempotency key has not finished yet.
var ErrAnalysisInProgress = errors.New("analysis with this idempotency key is in progress")

const (
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"
	ErrorCodeUpstreamTimeout    = "TIMEOUT"
	ErrorCodeUpstreamFailed     = "ANALYSIS_FAILED"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeStorage            = "STORAGE_ERROR"
	ErrorCodeInternal           = "INTERNAL_ERROR"
	ErrorCodeInProgress         = "ANALYSIS_IN_PROGRESS"
)
