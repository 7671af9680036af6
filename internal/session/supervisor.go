package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor owns the disconnect grace windows: a per-session timer armed
// when the host drops, cancelled on reconnect, and a background sweep that
// evicts participants disconnected past their grace period. Timers fire at
// most once per pause; a reclaim that races the timer wins because the
// termination path re-checks the paused state under the store lock.
type Supervisor struct {
	service          *Service
	hostGrace        time.Duration
	participantGrace time.Duration
	sweepInterval    time.Duration
	logger           zerolog.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

// SupervisorOptions configures grace windows and the sweep cadence.
type SupervisorOptions struct {
	HostGracePeriod        time.Duration
	ParticipantGracePeriod time.Duration
	SweepInterval          time.Duration
}

// NewSupervisor creates a supervisor over the given service.
func NewSupervisor(service *Service, opts SupervisorOptions, logger zerolog.Logger) *Supervisor {
	if opts.HostGracePeriod <= 0 {
		opts.HostGracePeriod = 30 * time.Second
	}
	if opts.ParticipantGracePeriod <= 0 {
		opts.ParticipantGracePeriod = 10 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Supervisor{
		service:          service,
		hostGrace:        opts.HostGracePeriod,
		participantGrace: opts.ParticipantGracePeriod,
		sweepInterval:    opts.SweepInterval,
		logger:           logger.With().Str("component", "disconnect_supervisor").Logger(),
		timers:           make(map[uuid.UUID]*time.Timer),
	}
}

// HostDisconnected pauses the session (when active) and arms the grace
// timer. Arming replaces any previous timer for the session.
func (sv *Supervisor) HostDisconnected(ctx context.Context, sessionID, conn uuid.UUID) {
	paused, err := sv.service.HostDisconnected(ctx, sessionID, conn)
	if err != nil {
		sv.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("host disconnect handling failed")
		return
	}
	if !paused {
		return
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if old, ok := sv.timers[sessionID]; ok {
		old.Stop()
	}
	sv.timers[sessionID] = time.AfterFunc(sv.hostGrace, func() {
		sv.fire(sessionID)
	})
	sv.logger.Info().
		Str("session_id", sessionID.String()).
		Dur("grace", sv.hostGrace).
		Msg("host grace timer armed")
}

// HostReconnected cancels a pending grace timer, if any.
func (sv *Supervisor) HostReconnected(sessionID uuid.UUID) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if t, ok := sv.timers[sessionID]; ok {
		t.Stop()
		delete(sv.timers, sessionID)
		sv.logger.Info().Str("session_id", sessionID.String()).Msg("host grace timer cancelled")
	}
}

func (sv *Supervisor) fire(sessionID uuid.UUID) {
	sv.mu.Lock()
	_, armed := sv.timers[sessionID]
	delete(sv.timers, sessionID)
	sv.mu.Unlock()
	if !armed {
		// A reconnect cancelled the timer between scheduling and firing.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sv.service.TerminateExpired(ctx, sessionID); err != nil {
		sv.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("grace expiry termination failed")
	}
}

// Run drives the participant eviction sweep until ctx is cancelled.
func (sv *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(sv.sweepInterval)
	defer ticker.Stop()

	sv.logger.Info().Dur("interval", sv.sweepInterval).Msg("supervisor sweep started")
	for {
		select {
		case <-ctx.Done():
			sv.Stop()
			sv.logger.Info().Msg("supervisor stopped")
			return
		case <-ticker.C:
			sv.service.SweepDisconnected(ctx, sv.participantGrace)
		}
	}
}

// Stop cancels all pending grace timers.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for id, t := range sv.timers {
		t.Stop()
		delete(sv.timers, id)
	}
}
