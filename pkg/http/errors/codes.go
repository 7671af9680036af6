package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInvalidToken = "invalid_token"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Session lifecycle errors
	ErrCodeSessionNotFound    = "session_not_found"
	ErrCodeSessionNotJoinable = "session_not_joinable"
	ErrCodeSessionNotActive   = "session_not_active"
	ErrCodeSessionGone        = "session_gone"
	ErrCodeHostBusy           = "host_session_exists"
	ErrCodeSummaryNotReady    = "summary_not_ready"

	// Gameplay errors
	ErrCodeStaleQuestion   = "stale_question"
	ErrCodeAlreadyAnswered = "already_answered"
	ErrCodeInvalidOption   = "invalid_option"
	ErrCodeBlacklisted     = "blacklisted"
	ErrCodeNameConflict    = "display_name_conflict"

	// Allocation errors
	ErrCodeAllocationExhausted = "allocation_exhausted"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
