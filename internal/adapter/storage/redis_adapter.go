package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/port"
)

const (
	sessionKeyPrefix  = "session:"
	idempotencyKeyTTL = 24 * time.Hour
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type RedisAdapter struct {
	client *redis.Client
}

var (
	_ port.CacheRepository = (*RedisAdapter)(nil)
	_ port.SessionStore    = (*RedisAdapter)(nil)
)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

type sessionPayload struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Save stores the session until its expiry; Redis drops it afterwards.
func (r *RedisAdapter) Save(ctx context.Context, session domain.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(sessionPayload{ID: session.Librarian, Email: session.Email, Name: session.Name})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+session.Token, data, ttl).Err()
}

func (r *RedisAdapter) Get(ctx context.Context, token string) (domain.Session, error) {
	key := sessionKeyPrefix + token

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Session{}, err
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}

	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}

	session := domain.Session{
		Token:     token,
		Librarian: payload.ID,
		Email:     payload.Email,
		Name:      payload.Name,
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		session.ExpiresAt = time.Now().Add(ttl)
	}
	return session, nil
}

func (r *RedisAdapter) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, sessionKeyPrefix+token).Err()
}
