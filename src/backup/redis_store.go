// Package backup stores authentication material in Redis so a session can be
// recovered after a restart without rescanning a QR code. It is only touched
// by recovery paths, never by the hot send/initialize path.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the remote backup contract. A missing key is a normal outcome,
// reported as (nil, nil) by Get and false by Exists, never as an error.
type Store interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
	Save(ctx context.Context, sessionID string, blob []byte) error
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RedisStore is a Redis-backed backup store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a Redis-backed backup store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "wa:auth:",
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("backup: exists check failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, blob []byte) error {
	if sessionID == "" {
		return fmt.Errorf("backup: missing session id")
	}
	if err := r.client.Set(ctx, r.key(sessionID), blob, 0).Err(); err != nil {
		return fmt.Errorf("backup: save failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("backup: get failed: %w", err)
	}
	return val, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("backup: delete failed: %w", err)
	}
	return nil
}

// ListByPrefix returns session ids whose backup key starts with prefix.
func (r *RedisStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	match := r.prefix + prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("backup: scan failed: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, r.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
