// Package db opens the Postgres pool behind the document checkpoint store
// and applies its embedded schema.
package db

import (
	"context"
	"fmt"
	"time"

	"lead_triage_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxConns        = 8
	minConns        = 1
	connMaxLifetime = time.Hour
	connMaxIdle     = 10 * time.Minute
	healthCheck     = time.Minute
)

// NewPool opens the pool and pings it once.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("db: parse DATABASE_URL: %w", err)
	}
	pc.MaxConns = maxConns
	pc.MinConns = minConns
	pc.MaxConnLifetime = connMaxLifetime
	pc.MaxConnIdleTime = connMaxIdle
	pc.HealthCheckPeriod = healthCheck

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}
