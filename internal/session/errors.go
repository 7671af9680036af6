package session

import "errors"

// Sentinel errors returned by session operations. Transport layers map these
// to HTTP statuses / gateway error codes; they never cross the boundary as
// unhandled faults.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotJoinable  = errors.New("session not joinable")
	ErrSessionNotActive    = errors.New("session not active")
	ErrStaleQuestion       = errors.New("stale question index")
	ErrAlreadyAnswered     = errors.New("question already answered")
	ErrInvalidOption       = errors.New("selected answer is not an option")
	ErrUnauthorized        = errors.New("caller not authorized for this session")
	ErrBlacklisted         = errors.New("identity is blacklisted for this session")
	ErrNameConflict        = errors.New("display name conflict could not be resolved")
	ErrAllocationExhausted = errors.New("join code allocation exhausted")
	ErrValidationFailed    = errors.New("validation failed")
	ErrHostBusy            = errors.New("host already has an active session")
	ErrSummaryNotReady     = errors.New("session summary not available")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrStoreUnavailable    = errors.New("session store unavailable")
)
