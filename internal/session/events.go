package session

import (
	"time"

	"github.com/google/uuid"
)

// Event is a server-initiated notification fanned out through the gateway.
// Each variant has a fixed schema so serialization is stable and verifiable.
type Event interface {
	EventType() string
}

// Broadcaster delivers events to connected clients. Delivery is best-effort
// and fire-and-forget relative to the command that produced the event; a slow
// subscriber must never stall the command path.
type Broadcaster interface {
	ToSession(sessionID uuid.UUID, e Event)
	ToHost(sessionID uuid.UUID, e Event)
	ToConnection(connID uuid.UUID, e Event)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

func (NopBroadcaster) ToSession(uuid.UUID, Event)    {}
func (NopBroadcaster) ToHost(uuid.UUID, Event)       {}
func (NopBroadcaster) ToConnection(uuid.UUID, Event) {}

// QuestionView is the participant-safe projection of the active question:
// the correct answer is stripped before it leaves the server.
type QuestionView struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"time_limit"`
	Points    int      `json:"points,omitempty"`
}

// HostQuestionView additionally carries the correct answer; it is only ever
// sent to the host's private group.
type HostQuestionView struct {
	QuestionView
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

type GameStartedEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	QuestionCount int       `json:"question_count"`
	StartedAt     time.Time `json:"started_at"`
}

func (GameStartedEvent) EventType() string { return "game_started" }

type NewQuestionEvent struct {
	SessionID     uuid.UUID    `json:"session_id"`
	QuestionIndex int          `json:"question_index"`
	Question      QuestionView `json:"question"`
	StartedAt     time.Time    `json:"started_at"`
}

func (NewQuestionEvent) EventType() string { return "new_question" }

type QuestionStartedEvent struct {
	SessionID     uuid.UUID        `json:"session_id"`
	QuestionIndex int              `json:"question_index"`
	Question      HostQuestionView `json:"question"`
	StartedAt     time.Time        `json:"started_at"`
}

func (QuestionStartedEvent) EventType() string { return "question_started" }

type GameEndedEvent struct {
	SessionID   uuid.UUID          `json:"session_id"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	EndedAt     time.Time          `json:"ended_at"`
}

func (GameEndedEvent) EventType() string { return "game_ended" }

type ParticipantJoinedEvent struct {
	SessionID        uuid.UUID `json:"session_id"`
	ParticipantID    uuid.UUID `json:"participant_id"`
	DisplayName      string    `json:"display_name"`
	ParticipantCount int       `json:"participant_count"`
}

func (ParticipantJoinedEvent) EventType() string { return "participant_joined" }

type ParticipantLeftEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Reason        string    `json:"reason"` // "left", "disconnected", "removed", "evicted"
}

func (ParticipantLeftEvent) EventType() string { return "participant_left" }

// AnswerSubmittedEvent is a host-only progress signal; it never exposes
// answer content.
type AnswerSubmittedEvent struct {
	SessionID        uuid.UUID `json:"session_id"`
	ParticipantID    uuid.UUID `json:"participant_id"`
	DisplayName      string    `json:"display_name"`
	QuestionIndex    int       `json:"question_index"`
	AnsweredCount    int       `json:"answered_count"`
	ParticipantCount int       `json:"participant_count"`
}

func (AnswerSubmittedEvent) EventType() string { return "answer_submitted" }

type LeaderboardUpdateEvent struct {
	SessionID uuid.UUID          `json:"session_id"`
	Entries   []LeaderboardEntry `json:"entries"`
}

func (LeaderboardUpdateEvent) EventType() string { return "leaderboard_update" }

type RemovedFromSessionEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
}

func (RemovedFromSessionEvent) EventType() string { return "removed_from_session" }

type SessionPausedEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	GraceSeconds int       `json:"grace_seconds"`
}

func (SessionPausedEvent) EventType() string { return "session_paused" }

type SessionResumedEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	QuestionIndex int       `json:"question_index"`
}

func (SessionResumedEvent) EventType() string { return "session_resumed" }

type SessionTerminatedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
}

func (SessionTerminatedEvent) EventType() string { return "session_terminated" }
