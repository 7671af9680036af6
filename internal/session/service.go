package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/metrics"
	"github.com/quizlive/quiz-live/internal/quiz"
	"github.com/quizlive/quiz-live/internal/session/scoring"
)

// Service orchestrates session lifecycle, membership, and scoring. It is the
// single entry point for mutations from every transport; all state lives in
// the store, never in handler-local memory, so any number of stateless
// gateway instances can share one store.
type Service struct {
	store   Store
	quizzes quiz.Provider
	codes   *Allocator
	engine  *scoring.Engine
	events  Broadcaster
	sink    SummarySink
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    Options
	now     func() time.Time
}

// Options configures gameplay defaults.
type Options struct {
	DefaultQuestionSeconds int
	JoinCodeAttempts       int
	HostGracePeriod        time.Duration
	ScoringConfig          scoring.Config
}

// NewService creates a session service with all dependencies. Broadcaster,
// sink, and metrics may be nil; no-op implementations are substituted.
func NewService(store Store, quizzes quiz.Provider, events Broadcaster, sink SummarySink, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Service {
	if opts.DefaultQuestionSeconds <= 0 {
		opts.DefaultQuestionSeconds = 30
	}
	if opts.HostGracePeriod <= 0 {
		opts.HostGracePeriod = 30 * time.Second
	}
	if events == nil {
		events = NopBroadcaster{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Service{
		store:   store,
		quizzes: quizzes,
		codes:   NewAllocator(store, opts.JoinCodeAttempts, logger),
		engine:  scoring.NewEngine(opts.ScoringConfig),
		events:  events,
		sink:    sink,
		metrics: m,
		logger:  logger.With().Str("component", "session_service").Logger(),
		opts:    opts,
		now:     time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateSessionParams carries host-supplied session settings.
type CreateSessionParams struct {
	QuizID                   string
	Title                    string
	QuestionTimeLimitSeconds int
}

// CreateSession allocates a room for a quiz. hostConn may be uuid.Nil when
// the session is created over REST before the host opens its socket; the
// host then binds its connection via reclaim.
func (s *Service) CreateSession(ctx context.Context, hostID uuid.UUID, hostName string, hostConn uuid.UUID, params CreateSessionParams) (*Session, error) {
	if params.QuizID == "" {
		return nil, fmt.Errorf("%w: quiz id required", ErrValidationFailed)
	}
	limit := params.QuestionTimeLimitSeconds
	if limit == 0 {
		limit = s.opts.DefaultQuestionSeconds
	}
	if limit < 5 || limit > 300 {
		return nil, fmt.Errorf("%w: question time limit must be 5-300s", ErrValidationFailed)
	}

	q, err := s.quizzes.GetQuiz(ctx, params.QuizID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	ok, err := s.store.AcquireHostSession(ctx, hostID, id)
	if err != nil {
		return nil, fmt.Errorf("acquire host slot: %w", err)
	}
	if !ok {
		return nil, ErrHostBusy
	}

	code, err := s.codes.Allocate(ctx, id)
	if err != nil {
		releaseErr := s.store.ReleaseHostSession(ctx, hostID)
		if releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Str("host_id", hostID.String()).Msg("failed to release host slot")
		}
		return nil, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = q.Title
	}

	now := s.now()
	sess := &Session{
		ID:                   id,
		JoinCode:             code,
		QuizID:               q.ID,
		Title:                title,
		HostID:               hostID,
		HostName:             hostName,
		State:                StateLobby,
		CurrentQuestionIndex: -1,
		QuestionTimeLimit:    limit,
		QuestionCount:        len(q.Questions),
		CreatedAt:            now,
		HostConnection:       hostConn,
		Participants:         make(map[uuid.UUID]*Participant),
		Blacklist:            make(map[string]struct{}),
	}

	if err := s.store.Put(ctx, sess); err != nil {
		_ = s.store.ReleaseJoinCode(ctx, code)
		_ = s.store.ReleaseHostSession(ctx, hostID)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.metrics.SessionCreated()
	s.logger.Info().
		Str("session_id", id.String()).
		Str("join_code", code).
		Str("host_id", hostID.String()).
		Msg("session created")

	return sess, nil
}

// JoinSession adds a participant identified only by display name.
func (s *Service) JoinSession(ctx context.Context, joinCode, displayName string, conn uuid.UUID) (*Session, *Participant, error) {
	found, err := s.store.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		return nil, nil, err
	}

	var joined *Participant
	sess, err := s.store.Update(ctx, found.ID, func(cur *Session) error {
		p, err := cur.addParticipant(displayName, conn, s.now())
		if err != nil {
			return err
		}
		joined = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.events.ToSession(sess.ID, ParticipantJoinedEvent{
		SessionID:        sess.ID,
		ParticipantID:    joined.ID,
		DisplayName:      joined.DisplayName,
		ParticipantCount: len(sess.Participants),
	})
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("participant", joined.DisplayName).
		Msg("participant joined")

	return sess, joined, nil
}

// StartGame transitions Lobby -> Active. Host only.
func (s *Service) StartGame(ctx context.Context, sessionID, conn uuid.UUID) (*Session, error) {
	q, err := s.quizForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(q.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", ErrValidationFailed)
	}
	first := q.Questions[0]

	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if err := requireHostConn(cur, conn); err != nil {
			return err
		}
		if cur.State != StateLobby {
			return fmt.Errorf("%w: state %s", ErrInvalidTransition, cur.State)
		}
		return cur.start(&first, cur.QuestionTimeLimit, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.events.ToSession(sess.ID, GameStartedEvent{
		SessionID:     sess.ID,
		QuestionCount: sess.QuestionCount,
		StartedAt:     *sess.StartedAt,
	})
	s.broadcastQuestion(sess)
	s.logger.Info().Str("session_id", sess.ID.String()).Msg("game started")
	return sess, nil
}

// NextQuestion advances to the question at index. Advancing past the final
// question completes the session. Host only.
func (s *Service) NextQuestion(ctx context.Context, sessionID, conn uuid.UUID, index int) (*Session, bool, error) {
	q, err := s.quizForSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	if index >= len(q.Questions) {
		sess, err := s.completeSession(ctx, sessionID, conn)
		if err != nil {
			return nil, false, err
		}
		return sess, true, nil
	}
	if index < 0 {
		return nil, false, fmt.Errorf("%w: negative question index", ErrValidationFailed)
	}
	question := q.Questions[index]

	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if err := requireHostConn(cur, conn); err != nil {
			return err
		}
		return cur.advance(index, &question, cur.QuestionTimeLimit, s.now())
	})
	if err != nil {
		return nil, false, err
	}

	s.broadcastQuestion(sess)
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Int("question_index", index).
		Msg("question advanced")
	return sess, false, nil
}

// EndSession transitions Active -> Completed, freezes scores, and emits the
// final leaderboard. Host only.
func (s *Service) EndSession(ctx context.Context, sessionID, conn uuid.UUID) (*Session, error) {
	return s.completeSession(ctx, sessionID, conn)
}

func (s *Service) completeSession(ctx context.Context, sessionID, conn uuid.UUID) (*Session, error) {
	now := s.now()
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if err := requireHostConn(cur, conn); err != nil {
			return err
		}
		if err := cur.complete(now); err != nil {
			return err
		}
		cur.Summary = buildSummary(cur, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionCompleted()
	s.events.ToSession(sess.ID, GameEndedEvent{
		SessionID:   sess.ID,
		Leaderboard: sess.Leaderboard(),
		EndedAt:     now,
	})
	s.recordSummary(sess.Summary)
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Int("participants", len(sess.Participants)).
		Msg("session completed")
	return sess, nil
}

// recordSummary hands the summary to the sink without blocking gameplay.
func (s *Service) recordSummary(sum *Summary) {
	if sum == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.sink.Record(ctx, sum); err != nil {
			s.logger.Warn().Err(err).
				Str("session_id", sum.SessionID.String()).
				Msg("summary sink record failed")
		}
	}()
}

// SubmitAnswer records one answer per participant per question. The dedup
// check runs inside the same atomic update that records the answer, closing
// the race between near-simultaneous duplicate submissions.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, participantID, conn uuid.UUID, questionIndex int, selected string) (*Answer, error) {
	var answer Answer
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if cur.State != StateActive {
			return fmt.Errorf("%w: state %s", ErrSessionNotActive, cur.State)
		}
		p, ok := cur.Participants[participantID]
		if !ok || p.ConnectionRef != conn {
			return ErrUnauthorized
		}
		if questionIndex != cur.CurrentQuestionIndex {
			return fmt.Errorf("%w: got %d, current is %d", ErrStaleQuestion, questionIndex, cur.CurrentQuestionIndex)
		}
		if cur.HasAnswer(participantID, questionIndex) {
			return ErrAlreadyAnswered
		}
		question := cur.CurrentQuestion
		if question == nil || cur.QuestionStartTime == nil {
			return fmt.Errorf("%w: no question in flight", ErrSessionNotActive)
		}
		if !quiz.HasOption(question.Options, selected) {
			return ErrInvalidOption
		}

		now := s.now()
		elapsed := now.Sub(*cur.QuestionStartTime)
		limit := time.Duration(cur.CurrentTimeLimit) * time.Second
		correct := strings.EqualFold(selected, question.CorrectAnswer)
		res := s.engine.Score(correct, question.Points, elapsed, limit)

		answer = Answer{
			ID:             uuid.New(),
			ParticipantID:  participantID,
			QuestionIndex:  questionIndex,
			SelectedAnswer: selected,
			IsCorrect:      correct,
			BaseScore:      res.BaseScore,
			TimeBonus:      res.TimeBonus,
			TotalScore:     res.TotalScore,
			SubmittedAt:    now,
			ResponseTime:   elapsed,
		}
		cur.Answers = append(cur.Answers, answer)

		p.Score += res.TotalScore
		p.TotalAnswers++
		if correct {
			p.CorrectAnswers++
		}
		p.HasAnsweredCurrentQuestion = true
		p.LastActivityAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AnswerSubmitted()
	p := sess.Participants[participantID]
	s.events.ToHost(sess.ID, AnswerSubmittedEvent{
		SessionID:        sess.ID,
		ParticipantID:    participantID,
		DisplayName:      p.DisplayName,
		QuestionIndex:    questionIndex,
		AnsweredCount:    sess.AnsweredCurrentCount(),
		ParticipantCount: len(sess.Participants),
	})
	s.events.ToSession(sess.ID, LeaderboardUpdateEvent{
		SessionID: sess.ID,
		Entries:   sess.Leaderboard(),
	})
	return &answer, nil
}

// RemoveParticipant evicts and blacklists a player. Host only. Returns the
// removed participant so the gateway can detach their connection.
func (s *Service) RemoveParticipant(ctx context.Context, sessionID, conn, participantID uuid.UUID) (*Participant, error) {
	var removed *Participant
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if err := requireHostConn(cur, conn); err != nil {
			return err
		}
		p, ok := cur.removeParticipant(participantID, true)
		if !ok {
			return fmt.Errorf("%w: participant %s", ErrSessionNotFound, participantID)
		}
		removed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.ToConnection(removed.ConnectionRef, RemovedFromSessionEvent{
		SessionID: sess.ID,
		Reason:    "removed by host",
	})
	s.events.ToSession(sess.ID, ParticipantLeftEvent{
		SessionID:     sess.ID,
		ParticipantID: removed.ID,
		DisplayName:   removed.DisplayName,
		Reason:        "removed",
	})
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("participant", removed.DisplayName).
		Msg("participant removed and blacklisted")
	return removed, nil
}

// UnbanParticipant lifts a blacklist entry. Host only. The player must
// re-submit a join; there is no auto-rejoin.
func (s *Service) UnbanParticipant(ctx context.Context, sessionID, conn uuid.UUID, displayName string) error {
	_, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if err := requireHostConn(cur, conn); err != nil {
			return err
		}
		if !cur.unban(displayName) {
			return fmt.Errorf("%w: %q is not blacklisted", ErrValidationFailed, displayName)
		}
		return nil
	})
	return err
}

// LeaveSession removes a participant voluntarily, without blacklisting.
func (s *Service) LeaveSession(ctx context.Context, sessionID, participantID, conn uuid.UUID) error {
	var left *Participant
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		p, ok := cur.Participants[participantID]
		if !ok || p.ConnectionRef != conn {
			return ErrUnauthorized
		}
		left, _ = cur.removeParticipant(participantID, false)
		return nil
	})
	if err != nil {
		return err
	}

	s.events.ToSession(sess.ID, ParticipantLeftEvent{
		SessionID:     sess.ID,
		ParticipantID: left.ID,
		DisplayName:   left.DisplayName,
		Reason:        "left",
	})
	return nil
}

// ParticipantDisconnected marks a dropped connection. Score and answer
// history are retained; a rejoin under the same name resolves to a new
// participant unless the old one was evicted first.
func (s *Service) ParticipantDisconnected(ctx context.Context, sessionID, participantID, conn uuid.UUID) error {
	var p *Participant
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		got, ok := cur.Participants[participantID]
		if !ok || got.ConnectionRef != conn {
			// Stale disconnect from a superseded connection; nothing to do.
			return nil
		}
		got.IsConnected = false
		got.LastActivityAt = s.now()
		p = got
		return nil
	})
	if err != nil || p == nil {
		return err
	}

	s.events.ToSession(sess.ID, ParticipantLeftEvent{
		SessionID:     sess.ID,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Reason:        "disconnected",
	})
	return nil
}

// HostDisconnected pauses an active session and records the grace anchor.
// Returns whether a pause actually happened so the supervisor knows to arm
// the grace timer.
func (s *Service) HostDisconnected(ctx context.Context, sessionID, conn uuid.UUID) (bool, error) {
	paused := false
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if cur.HostConnection != conn {
			return nil // a newer host connection took over
		}
		switch cur.State {
		case StateActive:
			if err := cur.pause(s.now()); err != nil {
				return err
			}
			paused = true
		case StateLobby:
			cur.HostConnection = uuid.Nil
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if paused {
		s.events.ToSession(sess.ID, SessionPausedEvent{
			SessionID:    sess.ID,
			GraceSeconds: int(s.opts.HostGracePeriod.Seconds()),
		})
		s.logger.Info().Str("session_id", sess.ID.String()).Msg("session paused, host disconnected")
	}
	return paused, nil
}

// ReclaimHost re-binds the host role to a new connection. The caller must
// present a verified host identity; a reconnect never silently inherits
// privileges from the old connection. Resumes a paused session.
func (s *Service) ReclaimHost(ctx context.Context, sessionID, hostID, conn uuid.UUID) (*Session, bool, error) {
	resumed := false
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		if cur.HostID != hostID {
			return ErrUnauthorized
		}
		if cur.State.Terminal() {
			return fmt.Errorf("%w: state %s", ErrSessionNotActive, cur.State)
		}
		cur.HostConnection = conn
		if cur.State == StatePaused {
			if err := cur.resume(); err != nil {
				return err
			}
			resumed = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if resumed {
		s.events.ToSession(sess.ID, SessionResumedEvent{
			SessionID:     sess.ID,
			QuestionIndex: sess.CurrentQuestionIndex,
		})
		s.logger.Info().Str("session_id", sess.ID.String()).Msg("session resumed, host reconnected")
	}
	return sess, resumed, nil
}

// Terminate is the absorbing abort path: always permitted, idempotent.
func (s *Service) Terminate(ctx context.Context, sessionID uuid.UUID, reason string) error {
	changed := false
	sess, err := s.store.Update(ctx, sessionID, func(cur *Session) error {
		changed = cur.terminate(s.now())
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil // already reclaimed
		}
		return err
	}
	if !changed {
		return nil
	}

	s.metrics.SessionTerminated()
	s.events.ToSession(sess.ID, SessionTerminatedEvent{
		SessionID: sess.ID,
		Reason:    reason,
	})
	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("reason", reason).
		Msg("session terminated")
	return nil
}

// TerminateExpired fires the grace-window cutover. It only acts on sessions
// still paused, so a reconnect racing the timer wins.
func (s *Service) TerminateExpired(ctx context.Context, sessionID uuid.UUID) error {
	cur, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if cur.State != StatePaused {
		return nil
	}
	return s.Terminate(ctx, sessionID, "host grace period elapsed")
}

// SweepDisconnected evicts participants whose disconnection exceeded the
// participant grace window. Runs from the supervisor's background loop.
func (s *Service) SweepDisconnected(ctx context.Context, grace time.Duration) {
	ids, err := s.store.ActiveSessionIDs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweep: list sessions failed")
		return
	}

	cutoff := s.now().Add(-grace)
	for _, id := range ids {
		var evicted []*Participant
		sess, err := s.store.Update(ctx, id, func(cur *Session) error {
			if cur.State.Terminal() {
				return nil
			}
			for pid, p := range cur.Participants {
				if !p.IsConnected && p.LastActivityAt.Before(cutoff) {
					if gone, ok := cur.removeParticipant(pid, false); ok {
						evicted = append(evicted, gone)
					}
				}
			}
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("sweep: update failed")
			}
			continue
		}
		for _, p := range evicted {
			s.events.ToSession(sess.ID, ParticipantLeftEvent{
				SessionID:     sess.ID,
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				Reason:        "evicted",
			})
		}
	}
}

// GetSession returns the session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	return s.store.Get(ctx, sessionID)
}

// GetByJoinCode returns the session a join code points to.
func (s *Service) GetByJoinCode(ctx context.Context, joinCode string) (*Session, error) {
	return s.store.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
}

// GetLeaderboard returns the current ranking.
func (s *Service) GetLeaderboard(ctx context.Context, sessionID uuid.UUID) ([]LeaderboardEntry, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Leaderboard(), nil
}

// GetSummary returns post-completion analytics. Host only.
func (s *Service) GetSummary(ctx context.Context, sessionID, hostID uuid.UUID) (*Summary, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.HostID != hostID {
		return nil, ErrUnauthorized
	}
	if sess.Summary == nil {
		return nil, ErrSummaryNotReady
	}
	return sess.Summary, nil
}

// quizForSession reloads the quiz backing a session.
func (s *Service) quizForSession(ctx context.Context, sessionID uuid.UUID) (*quiz.Quiz, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q, err := s.quizzes.GetQuiz(ctx, sess.QuizID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return q, nil
}

// broadcastQuestion fans out the in-flight question: stripped view to the
// session group, full view (with answer) to the host's private group.
func (s *Service) broadcastQuestion(sess *Session) {
	q := sess.CurrentQuestion
	if q == nil || sess.QuestionStartTime == nil {
		return
	}
	view := QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		Options:   q.Options,
		TimeLimit: sess.CurrentTimeLimit,
		Points:    q.Points,
	}
	s.events.ToSession(sess.ID, NewQuestionEvent{
		SessionID:     sess.ID,
		QuestionIndex: sess.CurrentQuestionIndex,
		Question:      view,
		StartedAt:     *sess.QuestionStartTime,
	})
	s.events.ToHost(sess.ID, QuestionStartedEvent{
		SessionID:     sess.ID,
		QuestionIndex: sess.CurrentQuestionIndex,
		Question: HostQuestionView{
			QuestionView:  view,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		},
		StartedAt: *sess.QuestionStartTime,
	})
}

// requireHostConn authorizes a privileged command against the stored host
// connection binding, never against a static token.
func requireHostConn(s *Session, conn uuid.UUID) error {
	if conn == uuid.Nil || s.HostConnection != conn {
		return ErrUnauthorized
	}
	return nil
}
