// Package redis provides the production session store: JSON snapshots with
// state-based TTLs, a per-session SetNX lock for serialized updates, and
// secondary keys for join codes and the one-session-per-host rule.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/session"
)

const (
	lockTTL       = 10 * time.Second
	lockRetries   = 50
	lockRetryWait = 20 * time.Millisecond

	sessionKeyPrefix = "session:"
	codeKeyPrefix    = "session:code:"
	hostKeyPrefix    = "session:host:"
	lockKeyPrefix    = "session:lock:"
	indexKey         = "session:index"
)

// unlockScript deletes the lock only if we still own it.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Store implements session.Store on Redis.
type Store struct {
	client *redis.Client
	policy session.TTLPolicy
	logger zerolog.Logger
}

var _ session.Store = (*Store)(nil)

// New creates a Redis-backed store.
func New(client *redis.Client, policy session.TTLPolicy, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		policy: policy,
		logger: logger.With().Str("component", "redis_store").Logger(),
	}
}

func sessionKey(id uuid.UUID) string  { return sessionKeyPrefix + id.String() }
func codeKey(code string) string      { return codeKeyPrefix + code }
func hostKey(hostID uuid.UUID) string { return hostKeyPrefix + hostID.String() }
func lockKey(id uuid.UUID) string     { return lockKeyPrefix + id.String() }

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %v", session.ErrStoreUnavailable, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *Store) GetByJoinCode(ctx context.Context, joinCode string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, codeKey(joinCode)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get join code: %v", session.ErrStoreUnavailable, err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt join code mapping %q: %w", joinCode, err)
	}
	// The code can outlive its session; a dangling mapping reads as not found.
	return s.Get(ctx, id)
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.policy.For(sess.State)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
	if sess.JoinCode != "" {
		// The code mapping tracks the session TTL so a code lookup on an
		// ended session can still answer with its terminal state.
		pipe.Set(ctx, codeKey(sess.JoinCode), sess.ID.String(), ttl)
	}
	if sess.State.Terminal() {
		pipe.SRem(ctx, indexKey, sess.ID.String())
		pipe.Del(ctx, hostKey(sess.HostID))
	} else {
		pipe.SAdd(ctx, indexKey, sess.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: put session: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, codeKey(sess.JoinCode))
	pipe.Del(ctx, hostKey(sess.HostID))
	pipe.SRem(ctx, indexKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete session: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, fn func(*session.Session) error) (*session.Session, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("unlock failed")
		}
	}()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// lock acquires the per-session mutation lock, retrying briefly so two
// near-simultaneous commands queue instead of failing.
func (s *Store) lock(ctx context.Context, id uuid.UUID) (func() error, error) {
	key := lockKey(id)
	lockValue := uuid.New().String()

	for attempt := 0; attempt < lockRetries; attempt++ {
		acquired, err := s.client.SetNX(ctx, key, lockValue, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %v", session.ErrStoreUnavailable, err)
		}
		if acquired {
			return func() error {
				// The guard value ensures we only delete our own lock.
				return s.client.Eval(ctx, unlockScript, []string{key}, lockValue).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
	return nil, fmt.Errorf("%w: lock contention on session %s", session.ErrStoreUnavailable, id)
}

func (s *Store) ReserveJoinCode(ctx context.Context, code string, id uuid.UUID) (bool, error) {
	// Reserved under the lobby TTL; Put refreshes it alongside the session.
	ok, err := s.client.SetNX(ctx, codeKey(code), id.String(), s.policy.Lobby).Result()
	if err != nil {
		return false, fmt.Errorf("%w: reserve join code: %v", session.ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *Store) ReleaseJoinCode(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, codeKey(code)).Err(); err != nil {
		return fmt.Errorf("%w: release join code: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) AcquireHostSession(ctx context.Context, hostID, id uuid.UUID) (bool, error) {
	ok, err := s.client.SetNX(ctx, hostKey(hostID), id.String(), s.policy.Lobby).Result()
	if err != nil {
		return false, fmt.Errorf("%w: acquire host slot: %v", session.ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *Store) ReleaseHostSession(ctx context.Context, hostID uuid.UUID) error {
	if err := s.client.Del(ctx, hostKey(hostID)).Err(); err != nil {
		return fmt.Errorf("%w: release host slot: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ActiveSessionIDs(ctx context.Context) ([]uuid.UUID, error) {
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", session.ErrStoreUnavailable, err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			s.logger.Warn().Str("member", m).Msg("skip corrupt index member")
			continue
		}
		// Drop index entries whose session key already expired.
		if _, err := s.Get(ctx, id); errors.Is(err, session.ErrSessionNotFound) {
			s.client.SRem(ctx, indexKey, m)
			continue
		} else if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
