package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-live"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Redis    Redis
	Postgres Postgres
	Security Security
	Session  Session
	CORS     CORS
}

// Redis holds session store configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Postgres captures connection info for the summary database.
// Optional: when Host is empty the summary sink is disabled.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Enabled reports whether a summary database is configured.
func (p Postgres) Enabled() bool {
	return p.Host != ""
}

// ConnString builds a pgx-compatible connection string.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Security stores secrets for host token verification.
type Security struct {
	HostTokenSecret string `env:"HOST_TOKEN_SECRET,notEmpty"`
	HostTokenIssuer string `env:"HOST_TOKEN_ISSUER" envDefault:"quiz-live"`
}

// Session groups live-session runtime knobs.
type Session struct {
	LobbyTTL               time.Duration `env:"SESSION_LOBBY_TTL" envDefault:"1h"`
	ActiveTTL              time.Duration `env:"SESSION_ACTIVE_TTL" envDefault:"30m"`
	EndedTTL               time.Duration `env:"SESSION_ENDED_TTL" envDefault:"10m"`
	HostGracePeriod        time.Duration `env:"HOST_GRACE_PERIOD" envDefault:"30s"`
	ParticipantGracePeriod time.Duration `env:"PARTICIPANT_GRACE_PERIOD" envDefault:"10m"`
	SweepInterval          time.Duration `env:"PARTICIPANT_SWEEP_INTERVAL" envDefault:"1m"`
	DefaultQuestionSeconds int           `env:"DEFAULT_QUESTION_SECONDS" envDefault:"30"`
	JoinCodeAttempts       int           `env:"JOIN_CODE_ATTEMPTS" envDefault:"10"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
