package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlive/quiz-live/internal/quiz"
)

func testQuestion() *quiz.Question {
	return &quiz.Question{
		ID:            "q1",
		Text:          "2+2?",
		Options:       []string{"3", "4"},
		CorrectAnswer: "4",
	}
}

func lobbySession() *Session {
	return &Session{
		ID:                   uuid.New(),
		State:                StateLobby,
		CurrentQuestionIndex: -1,
		QuestionCount:        3,
		Participants:         make(map[uuid.UUID]*Participant),
	}
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(StateLobby, StateActive))
	assert.True(t, CanTransition(StateLobby, StateTerminated))
	assert.False(t, CanTransition(StateLobby, StateCompleted))
	assert.False(t, CanTransition(StateLobby, StatePaused))

	assert.True(t, CanTransition(StateActive, StatePaused))
	assert.True(t, CanTransition(StateActive, StateCompleted))
	assert.True(t, CanTransition(StatePaused, StateActive))
	assert.False(t, CanTransition(StatePaused, StateCompleted))

	assert.True(t, CanTransition(StateCompleted, StateTerminated))
	assert.False(t, CanTransition(StateCompleted, StateActive))
	assert.False(t, CanTransition(StateTerminated, StateActive))
}

func TestStartArmsFirstQuestionAndResetsFlags(t *testing.T) {
	s := lobbySession()
	pid := uuid.New()
	s.Participants[pid] = &Participant{ID: pid, HasAnsweredCurrentQuestion: true}
	now := time.Now()

	require.NoError(t, s.start(testQuestion(), 30, now))

	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.Equal(t, 30, s.CurrentTimeLimit)
	require.NotNil(t, s.QuestionStartTime)
	assert.False(t, s.Participants[pid].HasAnsweredCurrentQuestion)
}

func TestStartRejectedOutsideLobby(t *testing.T) {
	s := lobbySession()
	require.NoError(t, s.start(testQuestion(), 30, time.Now()))

	err := s.start(testQuestion(), 30, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartRejectedWithEmptyQuiz(t *testing.T) {
	s := lobbySession()
	s.QuestionCount = 0

	err := s.start(testQuestion(), 30, time.Now())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestQuestionTimeLimitOverride(t *testing.T) {
	s := lobbySession()
	q := testQuestion()
	q.TimeLimit = 60

	require.NoError(t, s.start(q, 30, time.Now()))
	assert.Equal(t, 60, s.CurrentTimeLimit)

	// The override does not leak into later questions.
	plain := testQuestion()
	require.NoError(t, s.advance(1, plain, 30, time.Now()))
	assert.Equal(t, 30, s.CurrentTimeLimit)
}

func TestAdvanceRejectsBackwardIndex(t *testing.T) {
	s := lobbySession()
	require.NoError(t, s.start(testQuestion(), 30, time.Now()))
	require.NoError(t, s.advance(1, testQuestion(), 30, time.Now()))

	err := s.advance(0, testQuestion(), 30, time.Now())
	assert.ErrorIs(t, err, ErrStaleQuestion)
	assert.Equal(t, 1, s.CurrentQuestionIndex)
}

func TestAdvanceSameIndexRestartsClock(t *testing.T) {
	s := lobbySession()
	t0 := time.Now()
	require.NoError(t, s.start(testQuestion(), 30, t0))

	t1 := t0.Add(10 * time.Second)
	require.NoError(t, s.advance(0, testQuestion(), 30, t1))
	assert.True(t, s.QuestionStartTime.Equal(t1))
}

func TestPauseResumeKeepsQuestionClock(t *testing.T) {
	s := lobbySession()
	t0 := time.Now()
	require.NoError(t, s.start(testQuestion(), 30, t0))

	require.NoError(t, s.pause(t0.Add(5*time.Second)))
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, uuid.Nil, s.HostConnection)
	require.NotNil(t, s.HostDisconnectedAt)

	require.NoError(t, s.resume())
	assert.Equal(t, StateActive, s.State)
	assert.Nil(t, s.HostDisconnectedAt)
	// The clock keeps running through the pause.
	assert.True(t, s.QuestionStartTime.Equal(t0))
}

func TestCompleteClearsInFlightQuestion(t *testing.T) {
	s := lobbySession()
	require.NoError(t, s.start(testQuestion(), 30, time.Now()))

	require.NoError(t, s.complete(time.Now()))
	assert.Equal(t, StateCompleted, s.State)
	assert.Nil(t, s.CurrentQuestion)
	assert.Nil(t, s.QuestionStartTime)
	assert.NotNil(t, s.EndedAt)
}

func TestCompleteRejectedFromPaused(t *testing.T) {
	s := lobbySession()
	require.NoError(t, s.start(testQuestion(), 30, time.Now()))
	require.NoError(t, s.pause(time.Now()))

	err := s.complete(time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminateIsAbsorbingAndIdempotent(t *testing.T) {
	s := lobbySession()
	require.NoError(t, s.start(testQuestion(), 30, time.Now()))
	require.NoError(t, s.complete(time.Now()))
	endedAt := *s.EndedAt

	assert.True(t, s.terminate(time.Now().Add(time.Minute)))
	assert.Equal(t, StateTerminated, s.State)
	// Completion timestamp survives a later terminate.
	assert.True(t, s.EndedAt.Equal(endedAt))

	assert.False(t, s.terminate(time.Now()))
}
