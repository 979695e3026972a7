package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

const redisPingTimeout = 3 * time.Second

// connectRedis dials the report cache. An unset REDIS_ADDR or a failed ping
// yields nil and extraction runs uncached.
func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	opts := &redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DialTimeout:  redisPingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, report cache disabled", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}
