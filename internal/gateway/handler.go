package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/identity"
	"github.com/quizlive/quiz-live/internal/metrics"
	"github.com/quizlive/quiz-live/internal/quiz"
	"github.com/quizlive/quiz-live/internal/session"
	httperrors "github.com/quizlive/quiz-live/pkg/http/errors"
	"github.com/quizlive/quiz-live/pkg/http/ws"
)

// Handler routes WebSocket messages between clients and the session service.
// Hosts authenticate at upgrade time; participants are anonymous and earn
// their standing by joining with a valid code.
type Handler struct {
	service    *session.Service
	supervisor *session.Supervisor
	hub        *ws.Hub
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHandler creates a gateway message handler.
func NewHandler(service *session.Service, supervisor *session.Supervisor, hub *ws.Hub, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		service:    service,
		supervisor: supervisor,
		hub:        hub,
		metrics:    m,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// client is the per-connection state. It is only touched from the
// connection's read pump, so no locking is needed.
type client struct {
	connID        uuid.UUID
	host          *identity.Host // nil for participants
	sessionID     uuid.UUID
	participantID uuid.UUID
	isHost        bool
}

// HandleConnection runs the connection's lifetime: pumps, message routing,
// and disconnect cleanup. host is nil for participant connections.
func (h *Handler) HandleConnection(conn *websocket.Conn, host *identity.Host) {
	c := &client{connID: uuid.New(), host: host}
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.Register(c.connID, wsConn)
	h.metrics.ConnectionOpened()

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), c, msg)
	})

	h.cleanup(c)
}

// cleanup runs after the read pump exits. Host drops are routed through the
// supervisor so the grace window applies; participant drops are soft.
func (h *Handler) cleanup(c *client) {
	h.hub.Unregister(c.connID)
	h.metrics.ConnectionClosed()

	ctx := context.Background()
	if c.sessionID == uuid.Nil {
		return
	}
	if c.isHost {
		h.supervisor.HostDisconnected(ctx, c.sessionID, c.connID)
		return
	}
	if c.participantID != uuid.Nil {
		if err := h.service.ParticipantDisconnected(ctx, c.sessionID, c.participantID, c.connID); err != nil {
			h.logger.Warn().Err(err).
				Str("session_id", c.sessionID.String()).
				Msg("participant disconnect handling failed")
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *client, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeCreateSession:
		return h.handleCreateSession(ctx, c, msg)
	case ws.TypeReclaimHost:
		return h.handleReclaimHost(ctx, c, msg)
	case ws.TypeStartGame:
		return h.handleStartGame(ctx, c, msg)
	case ws.TypeNextQuestion:
		return h.handleNextQuestion(ctx, c, msg)
	case ws.TypeEndSession:
		return h.handleEndSession(ctx, c, msg)
	case ws.TypeRemovePlayer:
		return h.handleRemovePlayer(ctx, c, msg)
	case ws.TypeUnbanPlayer:
		return h.handleUnbanPlayer(ctx, c, msg)
	case ws.TypeJoinSession:
		return h.handleJoinSession(ctx, c, msg)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(ctx, c, msg)
	case ws.TypeLeaveSession:
		return h.handleLeaveSession(ctx, c, msg)
	case ws.TypePing:
		return h.send(c, ws.NewMessage(ws.TypePong, nil, msg.RequestID))
	default:
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeUnknownMessageType,
			fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleCreateSession(ctx context.Context, c *client, msg ws.Message) error {
	if c.host == nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeUnauthorized, "Host authentication required")
	}
	var req ws.CreateSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid create_session payload")
	}

	sess, err := h.service.CreateSession(ctx, c.host.ID, c.host.DisplayName, c.connID, session.CreateSessionParams{
		QuizID:                   req.QuizID,
		Title:                    req.Title,
		QuestionTimeLimitSeconds: req.QuestionTimeLimitSeconds,
	})
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}

	c.sessionID = sess.ID
	c.isHost = true
	h.hub.BindHost(sess.ID, c.connID)

	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"session_id": sess.ID,
		"join_code":  sess.JoinCode,
		"title":      sess.Title,
		"state":      sess.State,
	}, msg.RequestID))
}

func (h *Handler) handleReclaimHost(ctx context.Context, c *client, msg ws.Message) error {
	if c.host == nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeUnauthorized, "Host authentication required")
	}
	var req ws.ReclaimHostPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid reclaim_host payload")
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid session_id")
	}

	sess, resumed, err := h.service.ReclaimHost(ctx, sessionID, c.host.ID, c.connID)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}

	c.sessionID = sess.ID
	c.isHost = true
	h.hub.BindHost(sess.ID, c.connID)
	h.supervisor.HostReconnected(sess.ID)

	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"session_id":     sess.ID,
		"state":          sess.State,
		"resumed":        resumed,
		"question_index": sess.CurrentQuestionIndex,
	}, msg.RequestID))
}

func (h *Handler) handleStartGame(ctx context.Context, c *client, msg ws.Message) error {
	sessionID, ok := h.ownSessionID(c, msg)
	if !ok {
		return nil
	}
	sess, err := h.service.StartGame(ctx, sessionID, c.connID)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"session_id":     sess.ID,
		"state":          sess.State,
		"question_index": sess.CurrentQuestionIndex,
	}, msg.RequestID))
}

func (h *Handler) handleNextQuestion(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.NextQuestionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid next_question payload")
	}
	sessionID, ok := h.ownSessionID(c, msg)
	if !ok {
		return nil
	}

	sess, completed, err := h.service.NextQuestion(ctx, sessionID, c.connID, req.QuestionIndex)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"session_id":     sess.ID,
		"state":          sess.State,
		"completed":      completed,
		"question_index": sess.CurrentQuestionIndex,
	}, msg.RequestID))
}

func (h *Handler) handleEndSession(ctx context.Context, c *client, msg ws.Message) error {
	sessionID, ok := h.ownSessionID(c, msg)
	if !ok {
		return nil
	}
	sess, err := h.service.EndSession(ctx, sessionID, c.connID)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"session_id": sess.ID,
		"state":      sess.State,
	}, msg.RequestID))
}

func (h *Handler) handleRemovePlayer(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.RemovePlayerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid remove_player payload")
	}
	participantID, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid participant_id")
	}
	sessionID, ok := h.ownSessionID(c, msg)
	if !ok {
		return nil
	}

	removed, err := h.service.RemoveParticipant(ctx, sessionID, c.connID, participantID)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	// The evicted player's socket is cut after the removal notice is queued.
	h.hub.LeaveSession(sessionID, removed.ConnectionRef)

	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"participant_id": removed.ID,
		"display_name":   removed.DisplayName,
	}, msg.RequestID))
}

func (h *Handler) handleUnbanPlayer(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.UnbanPlayerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid unban_player payload")
	}
	sessionID, ok := h.ownSessionID(c, msg)
	if !ok {
		return nil
	}

	if err := h.service.UnbanParticipant(ctx, sessionID, c.connID, req.DisplayName); err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"display_name": req.DisplayName,
	}, msg.RequestID))
}

func (h *Handler) handleJoinSession(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.JoinSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid join_session payload")
	}
	if c.sessionID != uuid.Nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidRequest, "Connection already bound to a session")
	}

	sess, p, err := h.service.JoinSession(ctx, req.JoinCode, req.DisplayName, c.connID)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}

	c.sessionID = sess.ID
	c.participantID = p.ID
	h.hub.JoinSession(sess.ID, c.connID)

	ack := map[string]any{
		"session_id":     sess.ID,
		"participant_id": p.ID,
		"display_name":   p.DisplayName,
		"title":          sess.Title,
		"state":          sess.State,
	}
	// Late joiners get the in-flight question so they can participate
	// immediately.
	if sess.State == session.StateActive && sess.CurrentQuestion != nil {
		ack["question_index"] = sess.CurrentQuestionIndex
		ack["question"] = session.QuestionView{
			ID:        sess.CurrentQuestion.ID,
			Text:      sess.CurrentQuestion.Text,
			Options:   sess.CurrentQuestion.Options,
			TimeLimit: sess.CurrentTimeLimit,
			Points:    sess.CurrentQuestion.Points,
		}
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, ack, msg.RequestID))
}

func (h *Handler) handleSubmitAnswer(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}
	if c.participantID == uuid.Nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeUnauthorized, "Join a session before answering")
	}

	ans, err := h.service.SubmitAnswer(ctx, c.sessionID, c.participantID, c.connID, req.QuestionIndex, req.Answer)
	if err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	return h.send(c, ws.NewMessage(ws.TypeAck, map[string]any{
		"question_index": ans.QuestionIndex,
		"is_correct":     ans.IsCorrect,
		"base_score":     ans.BaseScore,
		"time_bonus":     ans.TimeBonus,
		"total_score":    ans.TotalScore,
	}, msg.RequestID))
}

func (h *Handler) handleLeaveSession(ctx context.Context, c *client, msg ws.Message) error {
	if c.participantID == uuid.Nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidRequest, "Not in a session")
	}

	if err := h.service.LeaveSession(ctx, c.sessionID, c.participantID, c.connID); err != nil {
		return h.replyServiceError(c, msg.RequestID, err)
	}
	h.hub.LeaveSession(c.sessionID, c.connID)
	c.sessionID = uuid.Nil
	c.participantID = uuid.Nil

	return h.send(c, ws.NewMessage(ws.TypeAck, nil, msg.RequestID))
}

// ownSessionID resolves the session a host command targets. Host commands
// are only valid on the connection that created or reclaimed the session.
func (h *Handler) ownSessionID(c *client, msg ws.Message) (uuid.UUID, bool) {
	if !c.isHost || c.sessionID == uuid.Nil {
		_ = h.sendError(c, msg.RequestID, httperrors.ErrCodeUnauthorized, "Host role required")
		return uuid.Nil, false
	}
	return c.sessionID, true
}

func (h *Handler) send(c *client, msg ws.Message) error {
	h.hub.SendToConnection(c.connID, msg)
	return nil
}

func (h *Handler) sendError(c *client, requestID, code, message string) error {
	return h.send(c, ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message}, requestID))
}

// replyServiceError maps service sentinels onto wire error codes.
func (h *Handler) replyServiceError(c *client, requestID string, err error) error {
	code := httperrors.ErrCodeInternalError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		code = httperrors.ErrCodeSessionNotFound
	case errors.Is(err, session.ErrSessionNotJoinable):
		code = httperrors.ErrCodeSessionNotJoinable
	case errors.Is(err, session.ErrSessionNotActive):
		code = httperrors.ErrCodeSessionNotActive
	case errors.Is(err, session.ErrInvalidTransition):
		code = httperrors.ErrCodeSessionNotActive
	case errors.Is(err, session.ErrStaleQuestion):
		code = httperrors.ErrCodeStaleQuestion
	case errors.Is(err, session.ErrAlreadyAnswered):
		code = httperrors.ErrCodeAlreadyAnswered
	case errors.Is(err, session.ErrInvalidOption):
		code = httperrors.ErrCodeInvalidOption
	case errors.Is(err, session.ErrBlacklisted):
		code = httperrors.ErrCodeBlacklisted
	case errors.Is(err, session.ErrNameConflict):
		code = httperrors.ErrCodeNameConflict
	case errors.Is(err, session.ErrHostBusy):
		code = httperrors.ErrCodeHostBusy
	case errors.Is(err, session.ErrUnauthorized):
		code = httperrors.ErrCodeUnauthorized
	case errors.Is(err, session.ErrValidationFailed), errors.Is(err, quiz.ErrQuizNotFound):
		code = httperrors.ErrCodeValidationFailed
	case errors.Is(err, session.ErrAllocationExhausted):
		code = httperrors.ErrCodeAllocationExhausted
	case errors.Is(err, session.ErrSummaryNotReady):
		code = httperrors.ErrCodeSummaryNotReady
	case errors.Is(err, session.ErrStoreUnavailable):
		code = httperrors.ErrCodeServiceUnavailable
	default:
		h.logger.Error().Err(err).Msg("unmapped service error")
	}
	return h.sendError(c, requestID, code, err.Error())
}
