package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlive/quiz-live/internal/session"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, session.DefaultTTLPolicy(), zerolog.Nop()), mr
}

func newSession(state session.State) *session.Session {
	return &session.Session{
		ID:                   uuid.New(),
		JoinCode:             "QRS789",
		HostID:               uuid.New(),
		State:                state,
		CurrentQuestionIndex: -1,
		CreatedAt:            time.Now().UTC(),
		Participants:         make(map[uuid.UUID]*session.Participant),
		Blacklist:            make(map[string]struct{}),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateLobby)

	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.JoinCode, got.JoinCode)

	byCode, err := store.GetByJoinCode(ctx, "QRS789")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byCode.ID)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestDanglingJoinCodeReadsAsNotFound(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	// Expire only the session key, leaving the code mapping behind.
	mr.Del(sessionKey(sess.ID))

	_, err := store.GetByJoinCode(ctx, sess.JoinCode)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPutSetsStateTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))
	assert.Equal(t, time.Hour, mr.TTL(sessionKey(sess.ID)))

	sess.State = session.StateActive
	require.NoError(t, store.Put(ctx, sess))
	assert.Equal(t, 30*time.Minute, mr.TTL(sessionKey(sess.ID)))

	sess.State = session.StateCompleted
	require.NoError(t, store.Put(ctx, sess))
	assert.Equal(t, 10*time.Minute, mr.TTL(sessionKey(sess.ID)))
}

func TestTerminalPutReleasesHostSlotAndIndex(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateActive)

	ok, err := store.AcquireHostSession(ctx, sess.HostID, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Put(ctx, sess))

	ids, err := store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, sess.ID)

	sess.State = session.StateTerminated
	require.NoError(t, store.Put(ctx, sess))

	assert.False(t, mr.Exists(hostKey(sess.HostID)))
	ids, err = store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, sess.ID)

	// Join code lookup still resolves so the API can answer 410 Gone.
	got, err := store.GetByJoinCode(ctx, sess.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, session.StateTerminated, got.State)
}

func TestUpdateSerializesAndPersists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	updated, err := store.Update(ctx, sess.ID, func(cur *session.Session) error {
		cur.Title = "Championship round"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Championship round", updated.Title)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Championship round", got.Title)
}

func TestUpdateReleasesLockAfterError(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	_, err := store.Update(ctx, sess.ID, func(*session.Session) error {
		return session.ErrInvalidOption
	})
	assert.ErrorIs(t, err, session.ErrInvalidOption)
	assert.False(t, mr.Exists(lockKey(sess.ID)))

	// The next update must proceed without waiting out the lock TTL.
	_, err = store.Update(ctx, sess.ID, func(*session.Session) error { return nil })
	assert.NoError(t, err)
}

func TestReserveJoinCodeIsExclusive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.ReserveJoinCode(ctx, "AAAAAA", uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ReserveJoinCode(ctx, "AAAAAA", uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseJoinCode(ctx, "AAAAAA"))
	ok, err = store.ReserveJoinCode(ctx, "AAAAAA", uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActiveSessionIDsPrunesExpired(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	sess := newSession(session.StateActive)
	require.NoError(t, store.Put(ctx, sess))

	mr.Del(sessionKey(sess.ID))

	ids, err := store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Pruning the last member removes the whole index set.
	assert.False(t, mr.Exists(indexKey))
}
