package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/identity"
	httperrors "github.com/quizlive/quiz-live/pkg/http/errors"
)

// HTTPHandlers exposes quiz intake for host tooling. Question payloads carry
// answer keys, so both endpoints require a host token.
type HTTPHandlers struct {
	provider *StaticProvider
	identity identity.Provider
	logger   zerolog.Logger
}

// NewHTTPHandlers creates the quiz REST handler set.
func NewHTTPHandlers(provider *StaticProvider, idp identity.Provider, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		provider: provider,
		identity: idp,
		logger:   logger.With().Str("component", "quiz_http").Logger(),
	}
}

// Create handles POST /v1/quizzes.
func (h *HTTPHandlers) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	var q Quiz
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if strings.TrimSpace(q.Title) == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "Title is required", "title")
		return
	}
	if len(q.Questions) == 0 {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "At least one question is required", "questions")
		return
	}
	for i := range q.Questions {
		if q.Questions[i].ID == "" {
			q.Questions[i].ID = uuid.NewString()
		}
		if err := ValidateQuestion(&q.Questions[i]); err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed,
				fmt.Sprintf("Question %d: %v", i, err), fmt.Sprintf("questions[%d]", i))
			return
		}
	}

	h.provider.Add(&q)
	h.logger.Info().Str("quiz_id", q.ID).Int("questions", len(q.Questions)).Msg("quiz registered")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":             q.ID,
		"title":          q.Title,
		"question_count": len(q.Questions),
	})
}

// Get handles GET /v1/quizzes/{quizID}. The response includes answer keys;
// it serves host tooling, never participants.
func (h *HTTPHandlers) Get(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	q, err := h.provider.GetQuiz(r.Context(), r.PathValue("quizID"))
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeInvalidRequest, "Quiz not found")
			return
		}
		httperrors.RespondInternalError(w, "Failed to load quiz")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(q)
}

func (h *HTTPHandlers) authenticate(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Missing bearer token")
		return false
	}
	if _, err := h.identity.Verify(token); err != nil {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid host token")
		return false
	}
	return true
}
