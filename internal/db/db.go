// Package db opens the PostgreSQL pool shared by the signal and experiment stores.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// VectorVersionQuery reports the installed pgvector version. Embedding
// columns use the vector type, so the extension must be present.
const VectorVersionQuery = "SELECT extversion FROM pg_extension WHERE extname = 'vector'"

// ErrVectorMissing is returned when the pgvector extension is not installed.
var ErrVectorMissing = errors.New("pgvector extension is not installed")

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DefaultPoolConfig sizes the pool for one ranking call fanning out over
// many scorer goroutines.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Open connects to url and verifies the connection with a ping.
func Open(ctx context.Context, url string, cfg PoolConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// VectorVersion returns the pgvector extension version.
func VectorVersion(ctx context.Context, conn *sql.DB) (string, error) {
	var version string
	err := conn.QueryRowContext(ctx, VectorVersionQuery).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrVectorMissing
	}
	if err != nil {
		return "", fmt.Errorf("failed to query pgvector version: %w", err)
	}
	return version, nil
}
