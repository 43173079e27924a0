// Package state opens the durable storage that backs console sessions and
// carts, plus the optional Redis connection used for throttling and replay.
package state

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/db"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/migrate"
	"github.com/angelmondragon/minierp-console/pkg/redis"
	"github.com/angelmondragon/minierp-console/pkg/storage"
	"github.com/angelmondragon/minierp-console/pkg/storage/rediskv"
	"github.com/angelmondragon/minierp-console/pkg/storage/sqlkv"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend bundles the opened state resources.
type Backend struct {
	KV    storage.KV
	DB    *db.Client
	Redis *redis.Client

	sql     *sqlkv.Store
	closers []func() error
}

// Open connects the configured state backend. Redis is connected whenever an
// endpoint is configured, even when state lives in SQL.
func Open(ctx context.Context, cfg config.StateConfig, dbCfg config.DBConfig, redisCfg config.RedisConfig, logg *logger.Logger) (*Backend, error) {
	b := &Backend{}

	if redisCfg.Enabled() {
		client, err := redis.New(ctx, redisCfg, logg)
		if err != nil {
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
	}

	switch cfg.NormalizedBackend() {
	case config.StateBackendSQL, "":
		client, err := db.New(ctx, dbCfg, logg)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("connecting database: %w", err), b.Close())
		}
		b.DB = client
		b.closers = append(b.closers, client.Close)

		if err := migrate.MaybeRun(ctx, dbCfg, logg, client); err != nil {
			return nil, multierr.Append(err, b.Close())
		}
		store, err := sqlkv.New(client.DB(), sqlkv.WithTTL(cfg.TTL))
		if err != nil {
			return nil, multierr.Append(err, b.Close())
		}
		b.sql = store
		b.KV = store
	case config.StateBackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis state backend needs a redis endpoint")
		}
		store, err := rediskv.New(b.Redis, cfg.TTL)
		if err != nil {
			return nil, multierr.Append(err, b.Close())
		}
		b.KV = store
	default:
		return nil, multierr.Append(fmt.Errorf("unsupported state backend %q", cfg.Backend), b.Close())
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "state_backend", cfg.NormalizedBackend()), "state storage ready")
	}
	return b, nil
}

// Pingers lists the live dependencies for readiness checks.
func (b *Backend) Pingers() map[string]Pinger {
	out := map[string]Pinger{}
	if b.DB != nil {
		out["database"] = b.DB
	}
	if b.Redis != nil {
		out["redis"] = b.Redis
	}
	return out
}

// PurgeExpired drops SQL state rows past their TTL. Redis expires keys on its
// own, so there is nothing to do there.
func (b *Backend) PurgeExpired(ctx context.Context) (int64, error) {
	if b.sql == nil {
		return 0, nil
	}
	return b.sql.PurgeExpired(ctx)
}

// Close releases every opened resource in reverse order.
func (b *Backend) Close() error {
	var errs error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, b.closers[i]())
	}
	b.closers = nil
	return errs
}
