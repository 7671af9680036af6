// Package summary persists post-completion session records to Postgres.
// The sink is optional; deployments without a database fall back to the
// no-op sink and keep summaries in the session store only.
package summary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/session"
)

// PostgresSink writes one row per completed session.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ session.SummarySink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink over the given pool.
func NewPostgresSink(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresSink {
	return &PostgresSink{
		pool:   pool,
		logger: logger.With().Str("component", "summary_sink").Logger(),
	}
}

const insertSummary = `
	INSERT INTO session_summaries (
		session_id, quiz_id, title, host_id, participant_count,
		average_score, average_accuracy, average_response_ms,
		top_entries, question_stats, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (session_id) DO NOTHING
`

// Record implements session.SummarySink. The insert is idempotent on
// session_id so a retried completion never duplicates rows.
func (s *PostgresSink) Record(ctx context.Context, sum *session.Summary) error {
	topEntries, err := json.Marshal(sum.Top)
	if err != nil {
		return fmt.Errorf("encode top entries: %w", err)
	}
	questionStats, err := json.Marshal(sum.QuestionStats)
	if err != nil {
		return fmt.Errorf("encode question stats: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertSummary,
		sum.SessionID, sum.QuizID, sum.Title, sum.HostID, sum.ParticipantCount,
		sum.AverageScore, sum.AverageAccuracy, sum.AverageResponseMs,
		topEntries, questionStats, sum.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	s.logger.Info().
		Str("session_id", sum.SessionID.String()).
		Int("participants", sum.ParticipantCount).
		Msg("summary recorded")
	return nil
}
