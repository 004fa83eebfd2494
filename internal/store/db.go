package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/lorastudio/internal/config"
)

const applicationName = "lorastudio"

// Connect opens the pool and waits for Postgres to answer a ping, retrying
// with a growing delay up to cfg.ConnectAttempts times. Containers started
// together with the database usually need a few seconds.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns))
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	attempts := max(cfg.ConnectAttempts, 1)
	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt == attempts {
			break
		}
		slog.Warn("database not ready, retrying", "attempt", attempt, "of", attempts, "error", err)

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, 8*time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("ping database after %d attempts: %w", attempts, err)
}
