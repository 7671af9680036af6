package session

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codeStore is a minimal Store stub for allocator tests.
type codeStore struct {
	Store
	reserved map[string]bool
	rejects  int
}

func (s *codeStore) ReserveJoinCode(_ context.Context, code string, _ uuid.UUID) (bool, error) {
	if s.rejects > 0 {
		s.rejects--
		return false, nil
	}
	if s.reserved[code] {
		return false, nil
	}
	if s.reserved == nil {
		s.reserved = make(map[string]bool)
	}
	s.reserved[code] = true
	return true, nil
}

func TestAllocateProducesWellFormedCode(t *testing.T) {
	alloc := NewAllocator(&codeStore{}, 10, zerolog.Nop())

	code, err := alloc.Allocate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, c), "unexpected character %q", c)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	store := &codeStore{rejects: 3}
	alloc := NewAllocator(store, 10, zerolog.Nop())

	code, err := alloc.Allocate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestAllocateExhaustsBudget(t *testing.T) {
	store := &codeStore{rejects: 5}
	alloc := NewAllocator(store, 5, zerolog.Nop())

	_, err := alloc.Allocate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestAlphabetExcludesAmbiguousCharacters(t *testing.T) {
	for _, forbidden := range "01OIL" {
		assert.False(t, strings.ContainsRune(codeAlphabet, forbidden))
	}
}
