package caching

import (
	"context"
	"strings"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

// NewRedisClient builds a client for addr, which may be a bare host:port or a
// redis:// / rediss:// URL. An unreachable server is logged, not fatal; the
// client reconnects on use.
func NewRedisClient(addr, password string, db int, logger *zap.Logger) *redis.Client {
	logger = logging.OrNop(logger)

	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid redis url, using it as an address", zap.String("addr", addr), zap.Error(err))
		} else {
			if password != "" {
				parsed.Password = password
			}
			opts = parsed
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Debug("redis connection established", zap.String("addr", opts.Addr))
	}
	return client
}
