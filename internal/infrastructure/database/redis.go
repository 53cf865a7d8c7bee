package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eslsoft/dictsync/internal/infrastructure/config"
)

// NewRedisClient connects to the configured Redis. It returns a nil client
// when redis.addr is empty so that callers can fall back to in-process backends.
func NewRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, func() {
		_ = client.Close()
	}, nil
}
