package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/camatch/camatch-api/pkg/config"
)

// connectTimeout bounds both the dial and the startup ping.
const connectTimeout = 5 * time.Second

// NewRedis connects to Redis and verifies the connection with a ping.
// Callers treat a nil client as caching disabled, so a connection
// failure here is surfaced rather than papered over.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: connectTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
