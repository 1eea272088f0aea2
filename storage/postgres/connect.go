package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connection errors.
var (
	ErrFailedToParseConfig = errors.New("postgres: failed to parse connection config")
	ErrFailedToConnect     = errors.New("postgres: failed to open connection")
)

// Config holds PostgreSQL pool configuration.
type Config struct {
	// ConnectionString is the PostgreSQL DSN or URL (required).
	ConnectionString string

	// MaxConns is the maximum pool size. Zero uses the pgxpool default.
	MaxConns int32

	// MinConns is the minimum number of idle connections kept open.
	MinConns int32

	// HealthCheckPeriod is how often idle connections are health-checked.
	HealthCheckPeriod time.Duration

	// RetryAttempts is how many times Connect retries before giving up.
	// Default: 3.
	RetryAttempts int

	// RetryInterval is the base wait between attempts; attempt n waits
	// n times this interval. Default: 1s.
	RetryInterval time.Duration
}

// Connect establishes a PostgreSQL connection pool with retry logic.
// Retries use a linear backoff so services restarting together do not
// hammer the database.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConfig, err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 3
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			// Ping to catch authentication and permission issues that only
			// surface on first use.
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}

	return nil, ErrFailedToConnect
}
