package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/matchcore/internal/config"
	"github.com/onnwee/matchcore/internal/db"
	"github.com/onnwee/matchcore/internal/experiment"
	"github.com/onnwee/matchcore/internal/signal"
)

// storage is the set of backends chosen from config. db and redis are nil
// when the corresponding URL is not configured.
type storage struct {
	db          *sql.DB
	redis       *redis.Client
	signals     signal.Store
	experiments experiment.ExperimentReader
	assignments experiment.AssignmentStore
}

// memoryStorage backs everything with in-process stores.
func memoryStorage() *storage {
	experiments := experiment.NewInMemoryStore()
	return &storage{
		signals:     signal.NewInMemoryStore(),
		experiments: experiments,
		assignments: experiments,
	}
}

// openStorage connects to Postgres and Redis when configured. Without a
// database URL the in-memory store is used, which is only useful for local
// development since it starts empty.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	st := memoryStorage()

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		if version, err := db.VectorVersion(ctx, conn); err != nil {
			logger.Warn("pgvector check failed; embedding signal will degrade", "error", err)
		} else {
			logger.Info("connected to database", "pgvector_version", version)
		}
		pg := experiment.NewPostgresStore(conn)
		st.db = conn
		st.signals = signal.NewPostgresStore(conn)
		st.experiments = pg
		st.assignments = pg
	} else {
		logger.Warn("DATABASE_URL not set; using empty in-memory store")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = st.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.redis = client
		st.assignments = experiment.NewCachedAssignmentStore(client, st.assignments, experiment.DefaultAssignmentCacheTTL, logger)
	}

	return st, nil
}

// Close releases the database pool and Redis client.
func (s *storage) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
