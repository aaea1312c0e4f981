package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess  = "access_token"
	fieldRefresh = "refresh_token"
)

// RedisStore keeps the token pair in a Redis hash so several recorder
// processes can share one dashboard login
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisStore stores tokens under "recorder:auth:<name>". ttl 0 keeps them until Logout.
func NewRedisStore(client *redis.Client, name string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("recorder:auth:%s", name),
		ttl:    ttl,
	}
}

func (r *RedisStore) Load(ctx context.Context) (Tokens, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to read tokens: %w", err)
	}
	if len(values) == 0 {
		return Tokens{}, ErrNoTokens
	}
	return Tokens{
		AccessToken:  values[fieldAccess],
		RefreshToken: values[fieldRefresh],
	}, nil
}

func (r *RedisStore) Save(ctx context.Context, t Tokens) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	pipe.HSet(ctx, r.key, fieldAccess, t.AccessToken, fieldRefresh, t.RefreshToken)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}
