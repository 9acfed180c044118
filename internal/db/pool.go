package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/crm-topology-worker/internal/config"
)

const healthCheckPeriod = 30 * time.Second

// NewPool opens the topology store pool. The first ping happens on fx start
// so a missing database fails startup instead of the first sync run.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.HealthCheckPeriod = healthCheckPeriod
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}

	target := maskPassword(cfg.URL)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				logger.Error("topology store unreachable", zap.Error(err), zap.String("url", target))
				return fmt.Errorf("[DATABASE CONNECTION FAILED] topology store at %s is not reachable: %w", target, err)
			}
			logger.Info("topology store connected",
				zap.String("url", target),
				zap.Int32("max_conns", poolCfg.MaxConns))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("topology store pool closed")
			return nil
		},
	})

	return pool, nil
}

// maskPassword hides the password of a connection URL for logging
func maskPassword(rawURL string) string {
	if rawURL == "" {
		return "<empty>"
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
