package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tregate/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions outside the process so any gateway replica can
// serve any request.
type Store interface {
	// Get loads the session with the given id. Returns ErrNotFound when it
	// does not exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Save writes the session, resetting its lifetime.
	Save(ctx context.Context, s *Session) error

	// Delete removes the session. Deleting a missing session is not an
	// error.
	Delete(ctx context.Context, id string) error
}

const redisKeyPrefix = "tregate:session:"

// redisStore is the redis-backed Store used in production. Sessions are
// stored as JSON blobs with a sliding TTL.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Store backed by the given redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (r *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session load failed: %w", err)
	}

	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		// A corrupt blob is unrecoverable; treat it as absent so the
		// caller re-authenticates instead of erroring forever.
		logging.Warn("SessionStore", "Corrupt session blob for %s, discarding", id)
		_ = r.client.Del(ctx, redisKeyPrefix+id).Err()
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *redisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session encode failed: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session save failed: %w", err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session delete failed: %w", err)
	}
	return nil
}
