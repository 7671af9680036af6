package ws

import "encoding/json"

// MessageType constants for the WebSocket protocol.
const (
	// Client -> Server
	TypeCreateSession = "create_session"
	TypeReclaimHost   = "reclaim_host"
	TypeStartGame     = "start_game"
	TypeNextQuestion  = "next_question"
	TypeEndSession    = "end_session"
	TypeRemovePlayer  = "remove_player"
	TypeUnbanPlayer   = "unban_player"
	TypeJoinSession   = "join_session"
	TypeSubmitAnswer  = "submit_answer"
	TypeLeaveSession  = "leave_session"
	TypePing          = "ping"

	// Server -> Client
	TypeAck                = "ack"
	TypeError              = "error"
	TypePong               = "pong"
	TypeGameStarted        = "game_started"
	TypeNewQuestion        = "new_question"
	TypeQuestionStarted    = "question_started"
	TypeGameEnded          = "game_ended"
	TypeParticipantJoined  = "participant_joined"
	TypeParticipantLeft    = "participant_left"
	TypeAnswerSubmitted    = "answer_submitted"
	TypeLeaderboardUpdate  = "leaderboard_update"
	TypeRemovedFromSession = "removed_from_session"
	TypeSessionPaused      = "session_paused"
	TypeSessionResumed     = "session_resumed"
	TypeSessionTerminated  = "session_terminated"
)

// Message wraps all WebSocket payloads with type and optional request ID.
// The request ID, when present, is echoed on the ack or error so clients can
// correlate responses.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client payloads (incoming)

type CreateSessionPayload struct {
	QuizID                   string `json:"quiz_id"`
	Title                    string `json:"title,omitempty"`
	QuestionTimeLimitSeconds int    `json:"question_time_limit_seconds,omitempty"`
}

type ReclaimHostPayload struct {
	SessionID string `json:"session_id"`
}

type StartGamePayload struct {
	SessionID string `json:"session_id"`
}

type NextQuestionPayload struct {
	SessionID     string `json:"session_id"`
	QuestionIndex int    `json:"question_index"`
}

type EndSessionPayload struct {
	SessionID string `json:"session_id"`
}

type RemovePlayerPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

type UnbanPlayerPayload struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

type JoinSessionPayload struct {
	JoinCode    string `json:"join_code"`
	DisplayName string `json:"display_name"`
}

type SubmitAnswerPayload struct {
	SessionID     string `json:"session_id"`
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

type LeaveSessionPayload struct {
	SessionID string `json:"session_id"`
}

// Server payloads (outgoing)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage builds a message with a JSON-encoded payload. Encoding failures
// of server-controlled payloads are programming errors; the payload is
// replaced with null so the frame still reaches the client.
func NewMessage(msgType string, payload any, requestID string) Message {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
	}
	return Message{Type: msgType, Payload: data, RequestID: requestID}
}
