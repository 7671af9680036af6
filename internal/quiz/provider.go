package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Question is the externally supplied payload for one quiz question.
// The correct answer travels with it; stripping it for participant views is the
// session engine's job, not the provider's.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	TimeLimit     int      `json:"time_limit,omitempty"` // seconds, 0 means session default
	Points        int      `json:"points,omitempty"`     // 0 means default base score
	Difficulty    string   `json:"difficulty,omitempty"`
	Category      string   `json:"category,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Quiz is an ordered question list supplied by an external collaborator.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Provider loads quiz content. Implementations are external collaborators;
// the session engine only consumes the ordered question list.
type Provider interface {
	GetQuiz(ctx context.Context, quizID string) (*Quiz, error)
}

// ErrQuizNotFound indicates the quiz reference could not be resolved.
var ErrQuizNotFound = errors.New("quiz not found")

const (
	minOptions    = 2
	maxOptions    = 6
	maxTextLength = 512
	minTimeLimit  = 5
	maxTimeLimit  = 300
)

// ValidateQuestion checks a question payload before it may be broadcast.
func ValidateQuestion(q *Question) error {
	if q == nil {
		return fmt.Errorf("question payload missing")
	}
	if text := strings.TrimSpace(q.Text); text == "" || len(text) > maxTextLength {
		return fmt.Errorf("question text must be 1-%d characters", maxTextLength)
	}
	if len(q.Options) < minOptions || len(q.Options) > maxOptions {
		return fmt.Errorf("question must have %d-%d options, got %d", minOptions, maxOptions, len(q.Options))
	}
	if !HasOption(q.Options, q.CorrectAnswer) {
		return fmt.Errorf("correct answer %q is not among the options", q.CorrectAnswer)
	}
	if q.TimeLimit != 0 && (q.TimeLimit < minTimeLimit || q.TimeLimit > maxTimeLimit) {
		return fmt.Errorf("question time limit must be %d-%ds", minTimeLimit, maxTimeLimit)
	}
	if q.Points < 0 {
		return fmt.Errorf("question points must not be negative")
	}
	return nil
}

// HasOption reports whether candidate case-insensitively matches one of options.
func HasOption(options []string, candidate string) bool {
	for _, opt := range options {
		if strings.EqualFold(opt, candidate) {
			return true
		}
	}
	return false
}

// StaticProvider serves quizzes from memory. Used for single-node deployments
// fed by the CRUD API and throughout the tests.
type StaticProvider struct {
	mu      sync.RWMutex
	quizzes map[string]*Quiz
}

// NewStaticProvider creates an empty in-memory provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{quizzes: make(map[string]*Quiz)}
}

// Add registers a quiz, replacing any previous quiz with the same ID.
func (p *StaticProvider) Add(q *Quiz) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quizzes[q.ID] = q
}

// GetQuiz implements Provider.
func (p *StaticProvider) GetQuiz(_ context.Context, quizID string) (*Quiz, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quizzes[quizID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, quizID)
	}
	return q, nil
}
