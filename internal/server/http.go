package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/config"
	"github.com/quizlive/quiz-live/internal/quiz"
	"github.com/quizlive/quiz-live/internal/session"
)

// Routes bundles the handler sets mounted on the HTTP server.
type Routes struct {
	Sessions *session.HTTPHandlers
	Quizzes  *quiz.HTTPHandlers
	GameWS   http.Handler
	Registry *prometheus.Registry
}

// New wires the REST surface, the WebSocket endpoint, and the operational
// endpoints into one http.Server.
func New(cfg *config.App, logger zerolog.Logger, redisClient *redis.Client, routes Routes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				logger.Error().Err(err).Msg("health check: redis ping failed")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if routes.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(routes.Registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	if routes.Sessions != nil {
		mux.HandleFunc("POST /v1/sessions", routes.Sessions.CreateSession)
		mux.HandleFunc("GET /v1/sessions/{joinCode}", routes.Sessions.GetByJoinCode)
		mux.HandleFunc("GET /v1/sessions/{sessionID}/summary", routes.Sessions.GetSummary)
		mux.HandleFunc("GET /v1/sessions/{sessionID}/leaderboard", routes.Sessions.GetLeaderboard)
		mux.HandleFunc("DELETE /v1/sessions/{sessionID}", routes.Sessions.Terminate)
	}

	if routes.Quizzes != nil {
		mux.HandleFunc("POST /v1/quizzes", routes.Quizzes.Create)
		mux.HandleFunc("GET /v1/quizzes/{quizID}", routes.Quizzes.Get)
	}

	if routes.GameWS != nil {
		mux.Handle("/ws/sessions", routes.GameWS)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: corsMiddleware(cfg.CORS, mux),
	}
}

// corsMiddleware applies the configured CORS policy to REST routes. The
// WebSocket upgrade has its own origin check.
func corsMiddleware(cfg config.CORS, next http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowedOrigins[o] = true
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CheckOrigin builds the WebSocket origin policy from CORS config. An empty
// allowlist accepts everything, matching development defaults.
func CheckOrigin(cfg config.CORS) func(*http.Request) bool {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return allowed[origin]
	}
}
