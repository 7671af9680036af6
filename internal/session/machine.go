package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quizlive/quiz-live/internal/quiz"
)

// The transition table is the single place where lifecycle legality is
// decided; both REST and gateway entry points funnel through the guard
// methods below, so neither can bypass the state machine.
var transitions = map[State][]State{
	StateLobby:      {StateActive, StateTerminated},
	StateActive:     {StateActive, StatePaused, StateCompleted, StateTerminated},
	StatePaused:     {StateActive, StateTerminated},
	StateCompleted:  {StateTerminated},
	StateTerminated: {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// start moves Lobby -> Active and arms the first question.
func (s *Session) start(first *quiz.Question, limitSeconds int, now time.Time) error {
	if !CanTransition(s.State, StateActive) || s.State != StateLobby {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.State)
	}
	if s.QuestionCount < 1 {
		return fmt.Errorf("%w: quiz has no questions", ErrValidationFailed)
	}
	if err := quiz.ValidateQuestion(first); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	s.State = StateActive
	s.StartedAt = &now
	s.armQuestion(0, first, limitSeconds, now)
	return nil
}

// advance moves to the question at index. Index never decreases; equal index
// re-arms the same question and restarts its clock.
func (s *Session) advance(index int, q *quiz.Question, limitSeconds int, now time.Time) error {
	if s.State != StateActive {
		return fmt.Errorf("%w: advance from %s", ErrSessionNotActive, s.State)
	}
	if index < s.CurrentQuestionIndex {
		return fmt.Errorf("%w: index %d behind current %d", ErrStaleQuestion, index, s.CurrentQuestionIndex)
	}
	if err := quiz.ValidateQuestion(q); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	s.armQuestion(index, q, limitSeconds, now)
	return nil
}

func (s *Session) armQuestion(index int, q *quiz.Question, limitSeconds int, now time.Time) {
	s.CurrentQuestionIndex = index
	s.CurrentQuestion = q
	s.QuestionStartTime = &now
	s.CurrentTimeLimit = limitSeconds
	if q.TimeLimit > 0 {
		s.CurrentTimeLimit = q.TimeLimit
	}
	for _, p := range s.Participants {
		p.HasAnsweredCurrentQuestion = false
	}
}

// pause moves Active -> Paused when the host connection is lost.
func (s *Session) pause(now time.Time) error {
	if !CanTransition(s.State, StatePaused) {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.State)
	}
	s.State = StatePaused
	s.HostDisconnectedAt = &now
	s.HostConnection = uuid.Nil
	return nil
}

// resume moves Paused -> Active after a host reconnect inside the grace
// window. The question clock is not compensated for the pause duration.
func (s *Session) resume() error {
	if s.State != StatePaused || !CanTransition(s.State, StateActive) {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.State)
	}
	s.State = StateActive
	s.HostDisconnectedAt = nil
	return nil
}

// complete freezes the session and snapshots the final standings.
func (s *Session) complete(now time.Time) error {
	if !CanTransition(s.State, StateCompleted) {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, s.State)
	}
	s.State = StateCompleted
	s.EndedAt = &now
	s.CurrentQuestion = nil
	s.QuestionStartTime = nil
	return nil
}

// terminate is the absorbing abort path. Idempotent: terminating a terminated
// session is a no-op.
func (s *Session) terminate(now time.Time) bool {
	if s.State == StateTerminated {
		return false
	}
	s.State = StateTerminated
	if s.EndedAt == nil {
		s.EndedAt = &now
	}
	s.CurrentQuestion = nil
	s.QuestionStartTime = nil
	return true
}
