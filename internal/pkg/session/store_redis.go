// internal/pkg/session/store_redis.go
package session

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares one session across several front-desk terminals of the
// same clinic. The key is scoped by a terminal group name so unrelated
// installs on the same Redis don't collide.
type RedisStore struct {
	client *redis.Client
	group  string
}

func NewRedisStore(client *redis.Client, group string) *RedisStore {
	if group == "" {
		group = "default"
	}
	return &RedisStore{client: client, group: group}
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// No TTL: expiry is detected reactively by the backend (HTTP 408),
	// not enforced locally.
	if err := r.client.Set(ctx, r.key(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	data, err := r.client.Get(ctx, r.key()).Bytes()
	if err == redis.Nil {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session from redis: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) key() string {
	return fmt.Sprintf("portal:session:%s", r.group)
}
