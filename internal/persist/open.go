package persist

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/l1jgo/savemaster/internal/config"
)

// OpenBackend connects the backend named by cfg.Backend.
func OpenBackend(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		return NewFileBackend(cfg.Dir, cfg.FileName, cfg.Extension)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case "postgres":
		db, err := OpenDB(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return NewSlotRepo(db), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, eris.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
		}
		return NewRedisBackend(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, eris.Wrapf(ErrUnknownBackend, "%q", cfg.Backend)
	}
}
