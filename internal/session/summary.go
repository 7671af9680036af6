package session

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

const summaryTopN = 10

// Summary is the durable post-completion record of one session.
type Summary struct {
	SessionID         uuid.UUID          `json:"session_id"`
	QuizID            string             `json:"quiz_id"`
	Title             string             `json:"title"`
	HostID            uuid.UUID          `json:"host_id"`
	ParticipantCount  int                `json:"participant_count"`
	AverageScore      float64            `json:"average_score"`
	AverageAccuracy   float64            `json:"average_accuracy"`
	AverageResponseMs float64            `json:"average_response_ms"`
	Top               []LeaderboardEntry `json:"top"`
	QuestionStats     []QuestionStat     `json:"question_stats"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// QuestionStat aggregates answers for one question index.
type QuestionStat struct {
	QuestionIndex int     `json:"question_index"`
	Answered      int     `json:"answered"`
	Correct       int     `json:"correct"`
	Accuracy      float64 `json:"accuracy"`
}

// SummarySink persists summaries. Recording is fire-and-forget relative to
// gameplay; a sink failure must not affect the live session.
type SummarySink interface {
	Record(ctx context.Context, s *Summary) error
}

// NopSink discards summaries.
type NopSink struct{}

func (NopSink) Record(context.Context, *Summary) error { return nil }

// buildSummary computes the analytics snapshot from a completed session.
func buildSummary(s *Session, completedAt time.Time) *Summary {
	sum := &Summary{
		SessionID:        s.ID,
		QuizID:           s.QuizID,
		Title:            s.Title,
		HostID:           s.HostID,
		ParticipantCount: len(s.Participants),
		CompletedAt:      completedAt,
	}

	var totalScore, totalCorrect, totalAnswers int
	var totalResponseMs float64
	for _, p := range s.Participants {
		totalScore += p.Score
		totalCorrect += p.CorrectAnswers
		totalAnswers += p.TotalAnswers
	}
	for i := range s.Answers {
		totalResponseMs += float64(s.Answers[i].ResponseTime.Milliseconds())
	}

	if n := len(s.Participants); n > 0 {
		sum.AverageScore = round2(float64(totalScore) / float64(n))
	}
	if totalAnswers > 0 {
		sum.AverageAccuracy = round2(float64(totalCorrect) / float64(totalAnswers))
	}
	if n := len(s.Answers); n > 0 {
		sum.AverageResponseMs = round2(totalResponseMs / float64(n))
	}

	entries := s.Leaderboard()
	if len(entries) > summaryTopN {
		entries = entries[:summaryTopN]
	}
	sum.Top = entries

	byQuestion := make(map[int]*QuestionStat)
	for i := range s.Answers {
		a := &s.Answers[i]
		stat, ok := byQuestion[a.QuestionIndex]
		if !ok {
			stat = &QuestionStat{QuestionIndex: a.QuestionIndex}
			byQuestion[a.QuestionIndex] = stat
		}
		stat.Answered++
		if a.IsCorrect {
			stat.Correct++
		}
	}
	for idx := 0; idx < s.QuestionCount; idx++ {
		stat, ok := byQuestion[idx]
		if !ok {
			stat = &QuestionStat{QuestionIndex: idx}
		}
		if stat.Answered > 0 {
			stat.Accuracy = round2(float64(stat.Correct) / float64(stat.Answered))
		}
		sum.QuestionStats = append(sum.QuestionStats, *stat)
	}

	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
