package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Config holds the Redis connection settings for the presence mirror.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// PresenceMirror write-throughs the gateway's in-process presence to Redis so
// the rest of the marketplace app can read online badges without talking to
// the gateway. TTL bounds staleness after a crash; the in-process registry
// stays the source of truth.
type PresenceMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// presence key: presence:<user>
// value: gateway node id; TTL controls the online validity period
func presenceKey(user string) string { return "presence:" + user }

func NewPresenceMirror(c Config, ttl time.Duration) (*PresenceMirror, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &PresenceMirror{rdb: rdb, ttl: ttl}, nil
}

// Online marks the user online and renews the TTL.
func (m *PresenceMirror) Online(ctx context.Context, user, nodeID string) error {
	return m.rdb.Set(ctx, presenceKey(user), nodeID, m.ttl).Err()
}

// Offline deletes the presence key.
func (m *PresenceMirror) Offline(ctx context.Context, user string) error {
	return m.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup checks whether the user is online according to the mirror.
func (m *PresenceMirror) Lookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	val, err := m.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (m *PresenceMirror) Close() error { return m.rdb.Close() }
