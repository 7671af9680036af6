package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlive/quiz-live/internal/session"
)

func newSession(state session.State) *session.Session {
	return &session.Session{
		ID:                   uuid.New(),
		JoinCode:             "ABC234",
		HostID:               uuid.New(),
		State:                state,
		CurrentQuestionIndex: -1,
		CreatedAt:            time.Now(),
		Participants:         make(map[uuid.UUID]*session.Participant),
		Blacklist:            make(map[string]struct{}),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateLobby)

	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, session.StateLobby, got.State)

	byCode, err := store.GetByJoinCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byCode.ID)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	store := New(session.DefaultTTLPolicy())

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = store.GetByJoinCode(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestExpiredSessionIsReaped(t *testing.T) {
	store := New(session.TTLPolicy{Lobby: time.Hour, Active: time.Hour, Ended: time.Hour})
	ctx := context.Background()
	sess := newSession(session.StateLobby)

	now := time.Now()
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.Put(ctx, sess))

	store.SetClock(func() time.Time { return now.Add(2 * time.Hour) })

	_, err := store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// The dangling join code reads as not found too, then becomes reclaimable.
	_, err = store.GetByJoinCode(ctx, sess.JoinCode)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	ok, err := store.ReserveJoinCode(ctx, sess.JoinCode, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateMutatesAtomically(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	updated, err := store.Update(ctx, sess.ID, func(cur *session.Session) error {
		cur.Title = "Friday trivia"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Friday trivia", updated.Title)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Friday trivia", got.Title)
}

func TestUpdateErrorAbortsWrite(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	boom := errors.New("boom")
	_, err := store.Update(ctx, sess.ID, func(cur *session.Session) error {
		cur.Title = "should not persist"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Title)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateActive)
	pid := uuid.New()
	sess.Participants[pid] = &session.Participant{ID: pid}
	require.NoError(t, store.Put(ctx, sess))

	const workers = 16
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := store.Update(ctx, sess.ID, func(cur *session.Session) error {
				cur.Participants[pid].Score += 10
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*10, got.Participants[pid].Score)
}

func TestReserveJoinCodeIsExclusive(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateLobby)
	require.NoError(t, store.Put(ctx, sess))

	ok, err := store.ReserveJoinCode(ctx, sess.JoinCode, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseJoinCode(ctx, sess.JoinCode))
	ok, err = store.ReserveJoinCode(ctx, sess.JoinCode, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReserveJoinCodeHeldForPendingSession(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	// Reserved during session creation, before the session itself is written.
	ok, err := store.ReserveJoinCode(ctx, "PEND22", uuid.New())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ReserveJoinCode(ctx, "PEND22", uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	// An abandoned reservation becomes reclaimable once the window passes.
	store.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	ok, err = store.ReserveJoinCode(ctx, "PEND22", uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHostSlotIsExclusiveUntilTerminal(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()
	sess := newSession(session.StateLobby)

	ok, err := store.AcquireHostSession(ctx, sess.HostID, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Put(ctx, sess))

	ok, err = store.AcquireHostSession(ctx, sess.HostID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	// Writing a terminal state releases the slot.
	sess.State = session.StateTerminated
	require.NoError(t, store.Put(ctx, sess))

	ok, err = store.AcquireHostSession(ctx, sess.HostID, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActiveSessionIDsSkipsTerminal(t *testing.T) {
	store := New(session.DefaultTTLPolicy())
	ctx := context.Background()

	live := newSession(session.StateActive)
	live.JoinCode = "LIVE22"
	done := newSession(session.StateCompleted)
	done.JoinCode = "DONE22"
	require.NoError(t, store.Put(ctx, live))
	require.NoError(t, store.Put(ctx, done))

	ids, err := store.ActiveSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{live.ID}, ids)
}
