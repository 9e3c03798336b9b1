package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout: "<prefix>session:<key>" and "<prefix>lock:<documentId>",
// values JSON-encoded. A generous TTL acts as a backstop in case the reaper
// never runs; the authoritative inactivity check lives in the Manager.
const redisBackstopTTL = 24 * time.Hour

// RedisRepository implements Repository using Redis as the backing store.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "docugate:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) sessionKey(key string) string {
	return r.prefix + "session:" + key
}

func (r *RedisRepository) lockKey(documentID string) string {
	return r.prefix + "lock:" + documentID
}

func (r *RedisRepository) SaveSession(ctx context.Context, s *EditingSession) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.sessionKey(s.Key), b, redisBackstopTTL).Err()
}

func (r *RedisRepository) GetSession(ctx context.Context, key string) (*EditingSession, error) {
	b, err := r.client.Get(ctx, r.sessionKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s EditingSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisRepository) DeleteSession(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.sessionKey(key)).Err()
}

func (r *RedisRepository) ListSessions(ctx context.Context) ([]*EditingSession, error) {
	var out []*EditingSession
	iter := r.client.Scan(ctx, 0, r.prefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var s EditingSession
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisRepository) GetLock(ctx context.Context, documentID string) (*Lock, error) {
	b, err := r.client.Get(ctx, r.lockKey(documentID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *RedisRepository) SetLock(ctx context.Context, l *Lock) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.lockKey(l.DocumentID), b, redisBackstopTTL).Err()
}

func (r *RedisRepository) DeleteLock(ctx context.Context, documentID string) error {
	return r.client.Del(ctx, r.lockKey(documentID)).Err()
}
