package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minNameLength    = 1
	maxNameLength    = 32
	nameSuffixBudget = 99
)

// addParticipant registers a new player. The caller must already hold the
// session via Store.Update. Name collisions are resolved by suffixing
// ("Alex" -> "Alex (2)"); blacklisted identities are rejected.
func (s *Session) addParticipant(displayName string, conn uuid.UUID, now time.Time) (*Participant, error) {
	if !s.State.Joinable() {
		return nil, fmt.Errorf("%w: state %s", ErrSessionNotJoinable, s.State)
	}

	name := trimName(displayName)
	if len(name) < minNameLength || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: display name must be %d-%d characters", ErrValidationFailed, minNameLength, maxNameLength)
	}
	if _, banned := s.Blacklist[foldName(name)]; banned {
		return nil, ErrBlacklisted
	}

	unique, err := s.uniqueName(name)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		ID:             uuid.New(),
		ConnectionRef:  conn,
		DisplayName:    unique,
		JoinedAt:       now,
		LastActivityAt: now,
		IsConnected:    true,
	}
	if s.Participants == nil {
		s.Participants = make(map[uuid.UUID]*Participant)
	}
	s.Participants[p.ID] = p
	return p, nil
}

// uniqueName appends " (n)" with the smallest n >= 2 that is still unique
// (case-insensitive) among present participants.
func (s *Session) uniqueName(name string) (string, error) {
	if !s.nameTaken(name) {
		return name, nil
	}
	for n := 2; n <= nameSuffixBudget; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if len(candidate) > maxNameLength {
			break
		}
		if !s.nameTaken(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNameConflict
}

func (s *Session) nameTaken(name string) bool {
	folded := foldName(name)
	for _, p := range s.Participants {
		if foldName(p.DisplayName) == folded {
			return true
		}
	}
	return false
}

// removeParticipant evicts a player. When ban is set the identity is added to
// the blacklist and barred from rejoining until an explicit unban.
func (s *Session) removeParticipant(id uuid.UUID, ban bool) (*Participant, bool) {
	p, ok := s.Participants[id]
	if !ok {
		return nil, false
	}
	if ban {
		if s.Blacklist == nil {
			s.Blacklist = make(map[string]struct{})
		}
		s.Blacklist[foldName(p.DisplayName)] = struct{}{}
	}
	delete(s.Participants, id)
	return p, true
}

// unban removes an identity from the blacklist. It does not rejoin the
// participant; they must submit a fresh join.
func (s *Session) unban(displayName string) bool {
	folded := foldName(displayName)
	if _, ok := s.Blacklist[folded]; !ok {
		return false
	}
	delete(s.Blacklist, folded)
	return true
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}
