// Package app wires configuration, infrastructure, and the session engine
// into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/config"
	"github.com/quizlive/quiz-live/internal/gateway"
	"github.com/quizlive/quiz-live/internal/identity"
	"github.com/quizlive/quiz-live/internal/logging"
	"github.com/quizlive/quiz-live/internal/metrics"
	"github.com/quizlive/quiz-live/internal/quiz"
	"github.com/quizlive/quiz-live/internal/server"
	"github.com/quizlive/quiz-live/internal/session"
	redisstore "github.com/quizlive/quiz-live/internal/store/redis"
	"github.com/quizlive/quiz-live/internal/summary"
	"github.com/quizlive/quiz-live/pkg/http/ws"
)

// Application aggregates shared infrastructure and the HTTP server.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	redis      *redis.Client
	pool       *pgxpool.Pool
	http       *http.Server
	supervisor *session.Supervisor

	bgCancel context.CancelFunc
}

// New bootstraps config, logger, Redis, optional Postgres, and the engine.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ttlPolicy := session.TTLPolicy{
		Lobby:  cfg.Session.LobbyTTL,
		Active: cfg.Session.ActiveTTL,
		Ended:  cfg.Session.EndedTTL,
	}
	store := redisstore.New(redisClient, ttlPolicy, logger)

	var pool *pgxpool.Pool
	var sink session.SummarySink = session.NopSink{}
	if cfg.Postgres.Enabled() {
		var err error
		pool, err = pgxpool.New(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		sink = summary.NewPostgresSink(pool, logger)
		logger.Info().Msg("summary sink enabled")
	} else {
		logger.Warn().Msg("no summary database configured; summaries are kept in the session store only")
	}

	verifier := identity.NewTokenVerifier(identity.TokenConfig{
		Secret: []byte(cfg.Security.HostTokenSecret),
		Issuer: cfg.Security.HostTokenIssuer,
	})

	quizzes := quiz.NewStaticProvider()
	hub := ws.NewHub(logger, m.MessageDropped)
	notifier := gateway.NewNotifier(hub)

	svc := session.NewService(store, quizzes, notifier, sink, m, session.Options{
		DefaultQuestionSeconds: cfg.Session.DefaultQuestionSeconds,
		JoinCodeAttempts:       cfg.Session.JoinCodeAttempts,
		HostGracePeriod:        cfg.Session.HostGracePeriod,
	}, logger)

	supervisor := session.NewSupervisor(svc, session.SupervisorOptions{
		HostGracePeriod:        cfg.Session.HostGracePeriod,
		ParticipantGracePeriod: cfg.Session.ParticipantGracePeriod,
		SweepInterval:          cfg.Session.SweepInterval,
	}, logger)

	wsHandler := gateway.NewWSHandler(
		gateway.NewHandler(svc, supervisor, hub, m, logger),
		verifier,
		server.CheckOrigin(cfg.CORS),
		logger,
	)

	httpServer := server.New(cfg, logger, redisClient, server.Routes{
		Sessions: session.NewHTTPHandlers(svc, verifier, logger),
		Quizzes:  quiz.NewHTTPHandlers(quizzes, verifier, logger),
		GameWS:   wsHandler,
		Registry: registry,
	})

	return &Application{
		cfg:        cfg,
		logger:     logger,
		redis:      redisClient,
		pool:       pool,
		http:       httpServer,
		supervisor: supervisor,
	}, nil
}

// Run starts the background workers and the HTTP server, then blocks until
// a shutdown signal arrives.
func (a *Application) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel
	go a.supervisor.Run(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		a.logger.Info().Msg("context cancelled")
	}

	return a.Shutdown()
}

// Shutdown stops the server and releases infrastructure connections.
func (a *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if a.bgCancel != nil {
		a.bgCancel()
	}

	var firstErr error
	if err := a.http.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.redis.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("redis close: %w", err)
	}

	a.logger.Info().Msg("shutdown complete")
	return firstErr
}
