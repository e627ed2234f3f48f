/*
Package app assembles the service graph shared by the server and the CLI.

WIRING:
  config ──▶ sqlite.Store ─┬─▶ responselog.Log ─┐
                           ├─▶ rollup.Engine ───┤ (Redis or local lock)
  regulator.Client ────────┼─▶ validation ──────┤
                           └────────────────────┴─▶ lifecycle.Service

  One regulator client is created here and injected everywhere it is
  needed; nothing holds it globally.
*/
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/config"
	"github.com/warp/ssn-filing/lifecycle"
	"github.com/warp/ssn-filing/regulator"
	"github.com/warp/ssn-filing/responselog"
	"github.com/warp/ssn-filing/rollup"
	"github.com/warp/ssn-filing/store/sqlite"
	"github.com/warp/ssn-filing/validation"
)

const redisConnectAttempts = 3

// App owns the long-lived resources of a process.
type App struct {
	Config    *config.AppConfig
	Logger    *logrus.Logger
	Store     *sqlite.Store
	Regulator *regulator.Client
	Lifecycle *lifecycle.Service

	redis *redis.Client
}

// New opens the database, connects Redis when configured and builds the
// lifecycle service.
func New(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*App, error) {
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := regulator.New(cfg.Regulator, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Store: store, Regulator: client}

	var locker rollup.Locker = rollup.NewLocalLocker()
	if cfg.RedisAddress != "" {
		rdb, err := config.ConnectRedis(ctx, cfg.RedisAddress, redisConnectAttempts)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.redis = rdb
		locker = rollup.NewRedisLocker(rdb, cfg.RollupLockTTL)
		logger.WithField("addr", cfg.RedisAddress).Info("rollup lock backed by redis")
	}

	engine := rollup.NewEngine(store, locker, logger)
	responses := responselog.New(store, logger)
	validator := validation.NewService(store, client, client.Company(), logger)
	validator.SkipRemote = cfg.SkipRemoteValidation

	a.Lifecycle = lifecycle.New(store, client, responses, engine, validator, logger)
	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.Store.Close()
}
