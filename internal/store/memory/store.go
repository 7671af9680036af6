// Package memory provides an in-process session store for single-node
// deployments and tests. It mirrors the redis store's semantics: JSON
// snapshots, state-based TTLs, and a serialized read-modify-write cycle per
// session.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizlive/quiz-live/internal/session"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// claim marks ownership of a join code or host slot. The owning session may
// not exist yet: reservations happen during CreateSession, before the first
// Put. Such claims hold for reservationWindow so a concurrent reservation
// cannot steal them mid-creation.
type claim struct {
	owner      uuid.UUID
	reservedAt time.Time
}

const reservationWindow = time.Minute

// Store keeps sessions in process memory. A single mutex guards all state;
// Update holds it across the whole read-modify-write cycle, which gives the
// per-session serialization the Store contract requires. Expired entries are
// reaped lazily on access.
type Store struct {
	policy session.TTLPolicy
	now    func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	codes    map[string]claim
	hosts    map[uuid.UUID]claim
}

var _ session.Store = (*Store)(nil)

// New creates an empty store with the given TTL policy.
func New(policy session.TTLPolicy) *Store {
	return &Store{
		policy:   policy,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*entry),
		codes:    make(map[string]claim),
		hosts:    make(map[uuid.UUID]claim),
	}
}

// SetClock overrides the time source for deterministic expiry tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *Store) GetByJoinCode(_ context.Context, joinCode string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[joinCode]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	// A dangling code whose session already expired reads as not found.
	return s.loadLocked(c.owner)
}

func (s *Store) Put(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(sess)
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(id)
	return nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.storeLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) ReserveJoinCode(_ context.Context, code string, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, taken := s.codes[code]; taken && s.claimLiveLocked(c) {
		return false, nil
	}
	s.codes[code] = claim{owner: id, reservedAt: s.now()}
	return true, nil
}

func (s *Store) ReleaseJoinCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

func (s *Store) AcquireHostSession(_ context.Context, hostID, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, taken := s.hosts[hostID]; taken && s.claimLiveLocked(c) {
		return false, nil
	}
	s.hosts[hostID] = claim{owner: id, reservedAt: s.now()}
	return true, nil
}

func (s *Store) ReleaseHostSession(_ context.Context, hostID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, hostID)
	return nil
}

func (s *Store) ActiveSessionIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []uuid.UUID
	for id := range s.sessions {
		sess, err := s.loadLocked(id)
		if err != nil {
			continue
		}
		if !sess.State.Terminal() {
			out = append(out, id)
		}
	}
	return out, nil
}

// loadLocked decodes a fresh copy of the session, reaping it if expired.
// Callers hold s.mu.
func (s *Store) loadLocked(id uuid.UUID) (*session.Session, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if !s.now().Before(e.expiresAt) {
		s.dropLocked(id)
		return nil, session.ErrSessionNotFound
	}

	var sess session.Session
	if err := json.Unmarshal(e.data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) storeLocked(sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	e, ok := s.sessions[sess.ID]
	if !ok {
		e = &entry{}
		s.sessions[sess.ID] = e
	}
	e.data = data
	e.expiresAt = s.now().Add(s.policy.For(sess.State))

	if sess.JoinCode != "" {
		s.codes[sess.JoinCode] = claim{owner: sess.ID, reservedAt: s.now()}
	}
	if sess.State.Terminal() {
		if cur, ok := s.hosts[sess.HostID]; ok && cur.owner == sess.ID {
			delete(s.hosts, sess.HostID)
		}
	}
	return nil
}

// claimLiveLocked reports whether a claim still holds: the owning session
// exists and has not expired, or it has not been written yet and the
// reservation window is still open. Callers hold s.mu.
func (s *Store) claimLiveLocked(c claim) bool {
	if e, ok := s.sessions[c.owner]; ok {
		return s.now().Before(e.expiresAt)
	}
	return s.now().Before(c.reservedAt.Add(reservationWindow))
}

func (s *Store) dropLocked(id uuid.UUID) {
	e, ok := s.sessions[id]
	if !ok {
		return
	}
	var sess session.Session
	if json.Unmarshal(e.data, &sess) == nil {
		if c, ok := s.codes[sess.JoinCode]; ok && c.owner == sess.ID {
			delete(s.codes, sess.JoinCode)
		}
		if c, ok := s.hosts[sess.HostID]; ok && c.owner == sess.ID {
			delete(s.hosts, sess.HostID)
		}
	}
	delete(s.sessions, id)
}
