package redis

import (
	"context"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/internal/config"
)

const (
	clientName    = "storefront-session"
	defaultPrefix = "storefront:session:"
)

// NewClient connects to the Redis instance holding the shared session hashes. Besides
// PING it checks that pub/sub commands are allowed, because other clients only learn
// about logins and logouts through the change channel.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*goRedis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.ClientName = clientName

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	client := goRedis.NewClient(opts)

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(checkCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.PubSubNumSub(checkCtx, prefix+"ready").Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to session redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("key_prefix", prefix))
	return client, nil
}
