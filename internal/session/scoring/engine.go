package scoring

import (
	"math"
	"time"
)

// Config holds configurable scoring constants.
type Config struct {
	BaseScore        int     // default: 100, overridable per question
	MaxBonusFraction float64 // default: 0.5 (up to 50% of base as time bonus)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseScore:        100,
		MaxBonusFraction: 0.5,
	}
}

// Engine computes server-side scores. A correct answer earns its base score
// plus a time bonus that decays linearly from the max to zero at the
// question deadline; a wrong answer earns nothing.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	if config.BaseScore <= 0 {
		config.BaseScore = DefaultConfig().BaseScore
	}
	if config.MaxBonusFraction <= 0 {
		config.MaxBonusFraction = DefaultConfig().MaxBonusFraction
	}
	return &Engine{config: config}
}

// Result breaks a scored answer into its components.
type Result struct {
	BaseScore  int
	TimeBonus  int
	TotalScore int
}

// Score computes points for a single answer. points overrides the default
// base score when positive. Answers at or past the deadline are still
// accepted but earn zero bonus; time limits are enforced through the formula,
// not by rejection.
func (e *Engine) Score(isCorrect bool, points int, elapsed, limit time.Duration) Result {
	base := e.config.BaseScore
	if points > 0 {
		base = points
	}
	if !isCorrect {
		return Result{BaseScore: base}
	}

	bonus := 0
	if limit > 0 {
		remaining := float64(limit-elapsed) / float64(limit)
		if remaining > 1 {
			remaining = 1
		}
		if remaining < 0 {
			remaining = 0
		}
		bonus = int(math.Round(float64(base) * e.config.MaxBonusFraction * remaining))
	}

	return Result{
		BaseScore:  base,
		TimeBonus:  bonus,
		TotalScore: base + bonus,
	}
}
