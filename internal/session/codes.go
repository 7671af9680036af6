package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// codeAlphabet excludes visually confusing characters (0/O, 1/I/L).
const (
	codeAlphabet      = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	codeLength        = 6
	defaultCodeBudget = 10
)

// Allocator hands out join codes that are unique among currently retained
// sessions. Uniqueness is delegated to the store's put-if-absent join-code
// index; no extra locking is required.
type Allocator struct {
	store    Store
	attempts int
	logger   zerolog.Logger
}

// NewAllocator creates a join code allocator with the given attempt budget.
func NewAllocator(store Store, attempts int, logger zerolog.Logger) *Allocator {
	if attempts <= 0 {
		attempts = defaultCodeBudget
	}
	return &Allocator{
		store:    store,
		attempts: attempts,
		logger:   logger.With().Str("component", "join_code_allocator").Logger(),
	}
}

// Allocate generates and reserves a code for the session. Exhausting the
// attempt budget is an operational alarm, not a user-retryable condition:
// collision probability is negligible at expected concurrency.
func (a *Allocator) Allocate(ctx context.Context, sessionID uuid.UUID) (string, error) {
	for i := 0; i < a.attempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		ok, err := a.store.ReserveJoinCode(ctx, code, sessionID)
		if err != nil {
			return "", fmt.Errorf("reserve join code: %w", err)
		}
		if ok {
			return code, nil
		}
		a.logger.Warn().Str("code", code).Int("attempt", i+1).Msg("join code collision")
	}
	a.logger.Error().Int("attempts", a.attempts).Msg("join code allocation exhausted")
	return "", ErrAllocationExhausted
}

// IsAvailable reports whether a code is currently unclaimed.
func (a *Allocator) IsAvailable(ctx context.Context, code string) (bool, error) {
	_, err := a.store.GetByJoinCode(ctx, code)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return true, nil
	}
	return false, err
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
