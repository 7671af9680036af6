package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier() *TokenVerifier {
	return NewTokenVerifier(TokenConfig{
		Secret: []byte("test-secret"),
		Issuer: "quiz-live-test",
	})
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier()
	host := Host{ID: uuid.New(), DisplayName: "Ms. Rivera"}

	token, err := v.Issue(host, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, host, got)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := newVerifier()

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := newVerifier()
	host := Host{ID: uuid.New(), DisplayName: "Ms. Rivera"}

	token, err := v.Issue(host, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	host := Host{ID: uuid.New(), DisplayName: "Ms. Rivera"}
	token, err := newVerifier().Issue(host, time.Hour)
	require.NoError(t, err)

	other := NewTokenVerifier(TokenConfig{Secret: []byte("different"), Issuer: "quiz-live-test"})
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issued := NewTokenVerifier(TokenConfig{Secret: []byte("test-secret"), Issuer: "someone-else"})
	host := Host{ID: uuid.New(), DisplayName: "Ms. Rivera"}
	token, err := issued.Issue(host, time.Hour)
	require.NoError(t, err)

	_, err = newVerifier().Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	v := newVerifier()
	token, err := v.Issue(Host{DisplayName: "ghost"}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
