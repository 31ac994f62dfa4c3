package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
)

const connectRetries = 4

// DB wraps the pgx pool behind the Postgres slot backend.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// OpenDB connects to Postgres, waits for the server to answer and applies
// pending slot table migrations.
func OpenDB(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	// a database started next to the game may still be booting
	attempt := 0
	backoff := retry.WithMaxRetries(connectRetries, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			log.Debug("postgres not ready", zap.Int("attempt", attempt), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	version, err := RunMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres pool ready",
		zap.Int32("max_conns", poolCfg.MaxConns), zap.Int("attempts", attempt), zap.Int64("schema", version))
	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
