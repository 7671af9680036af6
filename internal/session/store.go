package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store holds the single authoritative copy of each session, addressable by
// session ID and by join code. Implementations must make Update serializable
// per session: two concurrent Update calls for the same ID never interleave
// their read-modify-write cycles. Cross-session operations carry no ordering
// requirement.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*Session, error)

	// Put overwrites the session and resets its TTL from the current state.
	Put(ctx context.Context, s *Session) error

	Delete(ctx context.Context, id uuid.UUID) error

	// Update runs fn on the authoritative copy under the per-session lock and
	// persists the result. An error from fn aborts the write and is returned
	// unchanged.
	Update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error)

	// ReserveJoinCode atomically claims a code (put-if-absent). The store's
	// join-code index is the uniqueness authority for the allocator.
	ReserveJoinCode(ctx context.Context, code string, id uuid.UUID) (bool, error)
	ReleaseJoinCode(ctx context.Context, code string) error

	// AcquireHostSession claims the one-active-session-per-host slot.
	AcquireHostSession(ctx context.Context, hostID, id uuid.UUID) (bool, error)
	ReleaseHostSession(ctx context.Context, hostID uuid.UUID) error

	// ActiveSessionIDs lists sessions not yet in a terminal state; used by the
	// disconnect supervisor's background sweep.
	ActiveSessionIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TTLPolicy maps session state to retention windows: longest in lobby,
// medium while playing, shortest once the session has ended.
type TTLPolicy struct {
	Lobby  time.Duration
	Active time.Duration
	Ended  time.Duration
}

// DefaultTTLPolicy returns production retention defaults.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Lobby:  time.Hour,
		Active: 30 * time.Minute,
		Ended:  10 * time.Minute,
	}
}

// For resolves the TTL for a state. Paused counts as active play.
func (p TTLPolicy) For(state State) time.Duration {
	switch state {
	case StateLobby:
		return p.Lobby
	case StateActive, StatePaused:
		return p.Active
	default:
		return p.Ended
	}
}
