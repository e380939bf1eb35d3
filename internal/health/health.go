// Package health provides readiness checks for the Postgres and Redis
// dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RequiredTables are the relations ranking reads on every request.
var RequiredTables = []string{
	"profiles",
	"interaction_events",
	"privacy_settings",
	"user_blocks",
	"follows",
	"experiments",
	"experiment_assignments",
}

// DBChecker pings Postgres and verifies the ranking schema is migrated.
type DBChecker struct {
	db     *sql.DB
	tables []string
}

// NewDBChecker creates a database checker. With no tables given it checks
// RequiredTables.
func NewDBChecker(db *sql.DB, tables ...string) *DBChecker {
	if len(tables) == 0 {
		tables = RequiredTables
	}
	return &DBChecker{db: db, tables: tables}
}

// HealthCheck returns an error when the database is unreachable or a
// required table is missing.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	for _, table := range d.tables {
		var exists bool
		if err := d.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s does not exist", table)
		}
	}
	return nil
}

// RedisChecker pings the cache used for assignments, aggregates and rate limits.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
