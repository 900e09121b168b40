package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/internal/config"
)

// ErrSchemaMissing is returned when the session_entries table does not exist, usually
// because migrations are disabled and were never applied.
var ErrSchemaMissing = errors.New("session_entries table not found")

// minSessionConns covers one LISTEN connection for the change feed plus one for writes.
const minSessionConns = 2

// NewPool creates the pgx pool behind the postgres session store and checks that the
// session schema is in place.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	pgxCfg.ConnConfig.RuntimeParams["application_name"] = "storefront-session"

	pgxCfg.MaxConns = int32(max(cfg.MaxOpenConns, minSessionConns))
	if cfg.MaxIdleConns > 0 {
		pgxCfg.MinConns = int32(min(cfg.MaxIdleConns, int(pgxCfg.MaxConns)))
	}
	if cfg.MaxConnLifetime > 0 {
		pgxCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(checkCtx); err != nil {
		pool.Close()
		return nil, err
	}

	var present bool
	if err := pool.QueryRow(checkCtx, "SELECT to_regclass('session_entries') IS NOT NULL").Scan(&present); err != nil {
		pool.Close()
		return nil, err
	}
	if !present {
		pool.Close()
		return nil, ErrSchemaMissing
	}

	logger.Info("connected to session database",
		zap.String("host", pgxCfg.ConnConfig.Host),
		zap.String("db", pgxCfg.ConnConfig.Database),
		zap.Int32("max_conns", pgxCfg.MaxConns))
	return pool, nil
}
