package session

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizlive/quiz-live/internal/quiz"
)

// State is the lifecycle state of a live session.
type State string

const (
	StateLobby      State = "lobby"
	StateActive     State = "active"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateTerminated State = "terminated"
)

// Terminal reports whether no further gameplay transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTerminated
}

// Joinable reports whether new participants may enter.
func (s State) Joinable() bool {
	return s == StateLobby || s == StateActive
}

// Session is one live hosted quiz room. The store holds the single
// authoritative copy; every mutation goes through Store.Update.
type Session struct {
	ID       uuid.UUID `json:"id"`
	JoinCode string    `json:"join_code"`
	QuizID   string    `json:"quiz_id"`
	Title    string    `json:"title"`

	HostID   uuid.UUID `json:"host_id"`
	HostName string    `json:"host_name"`

	State                State          `json:"state"`
	CurrentQuestionIndex int            `json:"current_question_index"` // -1 while in lobby
	CurrentQuestion      *quiz.Question `json:"current_question,omitempty"`
	QuestionStartTime    *time.Time     `json:"question_start_time,omitempty"`
	QuestionTimeLimit    int            `json:"question_time_limit"` // seconds, session default
	CurrentTimeLimit     int            `json:"current_time_limit"`  // seconds, effective for the armed question
	QuestionCount        int            `json:"question_count"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	HostConnection     uuid.UUID  `json:"host_connection"`
	HostDisconnectedAt *time.Time `json:"host_disconnected_at,omitempty"`

	Participants map[uuid.UUID]*Participant `json:"participants"`
	Answers      []Answer                   `json:"answers"`
	Blacklist    map[string]struct{}        `json:"blacklist"` // case-folded display names

	Summary *Summary `json:"summary,omitempty"`
}

// Participant is one connected (or recently disconnected) player.
type Participant struct {
	ID                         uuid.UUID `json:"id"`
	ConnectionRef              uuid.UUID `json:"connection_ref"`
	DisplayName                string    `json:"display_name"`
	Score                      int       `json:"score"`
	CorrectAnswers             int       `json:"correct_answers"`
	TotalAnswers               int       `json:"total_answers"`
	JoinedAt                   time.Time `json:"joined_at"`
	LastActivityAt             time.Time `json:"last_activity_at"`
	IsConnected                bool      `json:"is_connected"`
	HasAnsweredCurrentQuestion bool      `json:"has_answered_current_question"`
}

// Answer records one participant's response to one question. Never mutated
// after creation.
type Answer struct {
	ID             uuid.UUID     `json:"id"`
	ParticipantID  uuid.UUID     `json:"participant_id"`
	QuestionIndex  int           `json:"question_index"`
	SelectedAnswer string        `json:"selected_answer"`
	IsCorrect      bool          `json:"is_correct"`
	BaseScore      int           `json:"base_score"`
	TimeBonus      int           `json:"time_bonus"`
	TotalScore     int           `json:"total_score"`
	SubmittedAt    time.Time     `json:"submitted_at"`
	ResponseTime   time.Duration `json:"response_time"`
}

// LeaderboardEntry is one row of the per-session ranking.
type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	ParticipantID  uuid.UUID `json:"participant_id"`
	DisplayName    string    `json:"display_name"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correct_answers"`
	IsConnected    bool      `json:"is_connected"`
}

// HasAnswer reports whether an answer exists for the (participant, question) pair.
func (s *Session) HasAnswer(participantID uuid.UUID, questionIndex int) bool {
	for i := range s.Answers {
		if s.Answers[i].ParticipantID == participantID && s.Answers[i].QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// AnswersForQuestion returns all answers recorded for one question index.
func (s *Session) AnswersForQuestion(questionIndex int) []Answer {
	var out []Answer
	for i := range s.Answers {
		if s.Answers[i].QuestionIndex == questionIndex {
			out = append(out, s.Answers[i])
		}
	}
	return out
}

// AnsweredCurrentCount counts participants who answered the current question.
func (s *Session) AnsweredCurrentCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.HasAnsweredCurrentQuestion {
			n++
		}
	}
	return n
}

// Leaderboard returns participants ranked by score desc, correct answers desc,
// join time asc. The order is a deterministic total order so repeated
// broadcasts never jitter equal-score participants.
func (s *Session) Leaderboard() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(s.Participants))
	joined := make(map[uuid.UUID]time.Time, len(s.Participants))
	for _, p := range s.Participants {
		joined[p.ID] = p.JoinedAt
		entries = append(entries, LeaderboardEntry{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			IsConnected:    p.IsConnected,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		ja, jb := joined[a.ParticipantID], joined[b.ParticipantID]
		if !ja.Equal(jb) {
			return ja.Before(jb)
		}
		return a.ParticipantID.String() < b.ParticipantID.String()
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
