package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/session"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// SessionBackends groups the per-user state stores.
type SessionBackends struct {
	Store   session.Store
	Scratch session.Scratch
	Locker  session.Locker
}

// BuildSessionBackends uses Redis when a client is given and in-process
// memory otherwise. Memory state is lost on restart and is not shared between
// replicas.
func BuildSessionBackends(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) SessionBackends {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil || cfg == nil {
		logger.Warn("redis not configured, keeping sessions in memory")
		return SessionBackends{
			Store:   session.NewMemoryStore(),
			Scratch: session.NewMemoryScratch(),
			Locker:  session.NewMemoryLocker(),
		}
	}
	logger.Info("using redis session store", "session_ttl", cfg.SessionTTL.String())
	return SessionBackends{
		Store:   session.NewRedisStore(redisClient, cfg.SessionTTL),
		Scratch: session.NewRedisScratch(redisClient, cfg.SessionTTL),
		Locker:  session.NewRedisLocker(redisClient, cfg.LockTTL),
	}
}
