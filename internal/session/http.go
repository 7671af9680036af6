package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/identity"
	"github.com/quizlive/quiz-live/internal/quiz"
	httperrors "github.com/quizlive/quiz-live/pkg/http/errors"
)

// HTTPHandlers exposes the REST surface of the session engine. Gameplay
// happens over the gateway; these endpoints cover creation, lobby discovery,
// and post-completion reads.
type HTTPHandlers struct {
	service  *Service
	identity identity.Provider
	logger   zerolog.Logger
}

// NewHTTPHandlers creates the REST handler set.
func NewHTTPHandlers(service *Service, idp identity.Provider, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service:  service,
		identity: idp,
		logger:   logger.With().Str("component", "session_http").Logger(),
	}
}

type createSessionRequest struct {
	QuizID                   string `json:"quiz_id"`
	Title                    string `json:"title,omitempty"`
	QuestionTimeLimitSeconds int    `json:"question_time_limit_seconds,omitempty"`
}

type createSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	JoinCode  string    `json:"join_code"`
	Title     string    `json:"title"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSession handles POST /v1/sessions. The session starts with no bound
// host connection; the host claims it over the gateway with reclaim_host.
func (h *HTTPHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	host, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	sess, err := h.service.CreateSession(r.Context(), host.ID, host.DisplayName, uuid.Nil, CreateSessionParams{
		QuizID:                   req.QuizID,
		Title:                    req.Title,
		QuestionTimeLimitSeconds: req.QuestionTimeLimitSeconds,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		JoinCode:  sess.JoinCode,
		Title:     sess.Title,
		State:     sess.State,
		CreatedAt: sess.CreatedAt,
	})
}

type lobbyView struct {
	SessionID        uuid.UUID            `json:"session_id"`
	JoinCode         string               `json:"join_code"`
	Title            string               `json:"title"`
	HostName         string               `json:"host_name"`
	State            State                `json:"state"`
	ParticipantCount int                  `json:"participant_count"`
	QuestionCount    int                  `json:"question_count"`
	Participants     []participantSummary `json:"participants"`
}

// participantSummary is the public projection of a player: no answer data,
// no connection ref.
type participantSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Connected   bool      `json:"connected"`
}

func participantSummaries(sess *Session) []participantSummary {
	out := make([]participantSummary, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		out = append(out, participantSummary{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Connected:   p.IsConnected,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// GetByJoinCode handles GET /v1/sessions/{joinCode}. Ended sessions answer
// 410 so clients can distinguish "over" from "never existed".
func (h *HTTPHandlers) GetByJoinCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("joinCode")
	sess, err := h.service.GetByJoinCode(r.Context(), code)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if sess.State.Terminal() {
		httperrors.RespondGone(w, httperrors.ErrCodeSessionGone, "Session has ended")
		return
	}

	respondJSON(w, http.StatusOK, lobbyView{
		SessionID:        sess.ID,
		JoinCode:         sess.JoinCode,
		Title:            sess.Title,
		HostName:         sess.HostName,
		State:            sess.State,
		ParticipantCount: len(sess.Participants),
		QuestionCount:    sess.QuestionCount,
		Participants:     participantSummaries(sess),
	})
}

// GetSummary handles GET /v1/sessions/{sessionID}/summary. Host only.
func (h *HTTPHandlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	host, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("sessionID"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid session id")
		return
	}

	sum, err := h.service.GetSummary(r.Context(), sessionID, host.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// GetLeaderboard handles GET /v1/sessions/{sessionID}/leaderboard.
func (h *HTTPHandlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("sessionID"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid session id")
		return
	}

	board, err := h.service.GetLeaderboard(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": board})
}

// Terminate handles DELETE /v1/sessions/{sessionID}: the host abort path.
func (h *HTTPHandlers) Terminate(w http.ResponseWriter, r *http.Request) {
	host, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("sessionID"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid session id")
		return
	}

	sess, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if sess.HostID != host.ID {
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Not the session host")
		return
	}

	if err := h.service.Terminate(r.Context(), sessionID, "terminated by host"); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate resolves the Bearer token into a host identity.
func (h *HTTPHandlers) authenticate(w http.ResponseWriter, r *http.Request) (identity.Host, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Missing bearer token")
		return identity.Host{}, false
	}
	host, err := h.identity.Verify(token)
	if err != nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid host token")
		return identity.Host{}, false
	}
	return host, true
}

// respondServiceError maps service sentinels onto HTTP statuses.
func (h *HTTPHandlers) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "Session not found")
	case errors.Is(err, ErrSessionNotJoinable):
		httperrors.RespondConflict(w, httperrors.ErrCodeSessionNotJoinable, err.Error())
	case errors.Is(err, ErrHostBusy):
		httperrors.RespondConflict(w, httperrors.ErrCodeHostBusy, "Host already has an active session")
	case errors.Is(err, ErrSummaryNotReady):
		httperrors.RespondNotFound(w, httperrors.ErrCodeSummaryNotReady, "Session has not completed")
	case errors.Is(err, ErrUnauthorized):
		httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Not the session host")
	case errors.Is(err, ErrValidationFailed), errors.Is(err, quiz.ErrQuizNotFound):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, ErrAllocationExhausted):
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeAllocationExhausted, "Could not allocate a join code")
	case errors.Is(err, ErrStoreUnavailable):
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "Session store unavailable")
	default:
		h.logger.Error().Err(err).Msg("unmapped service error")
		httperrors.RespondInternalError(w, "Internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
