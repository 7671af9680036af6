package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlive/quiz-live/internal/session"
)

func newSupervisorFixture(t *testing.T, hostGrace time.Duration) (*fixture, *session.Supervisor) {
	t.Helper()
	f := newFixture(t)
	sv := session.NewSupervisor(f.svc, session.SupervisorOptions{
		HostGracePeriod:        hostGrace,
		ParticipantGracePeriod: 10 * time.Minute,
		SweepInterval:          time.Minute,
	}, zerolog.Nop())
	t.Cleanup(sv.Stop)
	return f, sv
}

func waitForState(t *testing.T, f *fixture, id uuid.UUID, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.svc.GetSession(context.Background(), id)
		require.NoError(t, err)
		if got.State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	t.Fatalf("session never reached %s, stuck at %s", want, got.State)
}

func TestSupervisorTerminatesAfterGrace(t *testing.T) {
	f, sv := newSupervisorFixture(t, 30*time.Millisecond)
	hostConn := uuid.New()
	sess := f.createSession(t, hostConn)
	ctx := context.Background()

	_, err := f.svc.StartGame(ctx, sess.ID, hostConn)
	require.NoError(t, err)

	sv.HostDisconnected(ctx, sess.ID, hostConn)
	waitForState(t, f, sess.ID, session.StateTerminated)
}

func TestSupervisorReconnectCancelsTimer(t *testing.T) {
	f, sv := newSupervisorFixture(t, 50*time.Millisecond)
	hostConn := uuid.New()
	sess := f.createSession(t, hostConn)
	ctx := context.Background()

	_, err := f.svc.StartGame(ctx, sess.ID, hostConn)
	require.NoError(t, err)

	sv.HostDisconnected(ctx, sess.ID, hostConn)

	_, resumed, err := f.svc.ReclaimHost(ctx, sess.ID, sess.HostID, uuid.New())
	require.NoError(t, err)
	require.True(t, resumed)
	sv.HostReconnected(sess.ID)

	time.Sleep(150 * time.Millisecond)
	got, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, got.State)
}

func TestSupervisorLateReclaimStillSafe(t *testing.T) {
	// Even if the gateway forgets to cancel the timer, a session that
	// resumed before expiry must not be terminated.
	f, sv := newSupervisorFixture(t, 40*time.Millisecond)
	hostConn := uuid.New()
	sess := f.createSession(t, hostConn)
	ctx := context.Background()

	_, err := f.svc.StartGame(ctx, sess.ID, hostConn)
	require.NoError(t, err)

	sv.HostDisconnected(ctx, sess.ID, hostConn)
	_, _, err = f.svc.ReclaimHost(ctx, sess.ID, sess.HostID, uuid.New())
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	got, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, got.State)
}

func TestSupervisorLobbyDisconnectArmsNoTimer(t *testing.T) {
	f, sv := newSupervisorFixture(t, 20*time.Millisecond)
	hostConn := uuid.New()
	sess := f.createSession(t, hostConn)

	sv.HostDisconnected(context.Background(), sess.ID, hostConn)

	time.Sleep(80 * time.Millisecond)
	got, err := f.svc.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateLobby, got.State)
}

func TestSupervisorRunSweepsParticipants(t *testing.T) {
	f := newFixture(t)
	sv := session.NewSupervisor(f.svc, session.SupervisorOptions{
		HostGracePeriod:        time.Second,
		ParticipantGracePeriod: 10 * time.Minute,
		SweepInterval:          20 * time.Millisecond,
	}, zerolog.Nop())

	hostConn := uuid.New()
	sess := f.createSession(t, hostConn)
	_, p, conn := f.join(t, sess.JoinCode, "Alex")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.svc.StartGame(ctx, sess.ID, hostConn)
	require.NoError(t, err)
	require.NoError(t, f.svc.ParticipantDisconnected(ctx, sess.ID, p.ID, conn))
	f.advance(11 * time.Minute)

	go sv.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.svc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		if _, present := got.Participants[p.ID]; !present {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("disconnected participant was never evicted")
}
