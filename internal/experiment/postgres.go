package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onnwee/matchcore/internal/tracing"
)

// PostgresStore implements ExperimentReader and AssignmentStore using PostgreSQL.
// Assignment uniqueness is enforced by the (user_id, experiment_name) primary key.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveExperiment inserts or updates an experiment definition.
func (s *PostgresStore) SaveExperiment(ctx context.Context, e Experiment) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "experiments", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	variants, err := json.Marshal(e.Variants)
	if err != nil {
		return fmt.Errorf("failed to encode variants: %w", err)
	}

	query := `
		INSERT INTO experiments (name, context, status, variants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET context = EXCLUDED.context,
		    status = EXCLUDED.status,
		    variants = EXCLUDED.variants,
		    updated_at = NOW()
	`
	if _, err = s.db.ExecContext(ctx, query, e.Name, string(e.Context), string(e.Status), variants); err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

// GetExperiment returns the named experiment or ErrExperimentNotFound.
func (s *PostgresStore) GetExperiment(ctx context.Context, name string) (_ *Experiment, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "experiments", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT name, context, status, variants, created_at, updated_at
		FROM experiments
		WHERE name = $1
	`

	var (
		e        Experiment
		variants []byte
	)
	err = s.db.QueryRowContext(ctx, query, name).Scan(
		&e.Name,
		&e.Context,
		&e.Status,
		&variants,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if err = json.Unmarshal(variants, &e.Variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	return &e, nil
}

// GetAssignment returns the stored assignment or nil.
func (s *PostgresStore) GetAssignment(ctx context.Context, userID, experiment string) (_ *Assignment, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "experiment_assignments", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	a, err := s.selectAssignment(ctx, userID, experiment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// CreateAssignment inserts a unless the user is already assigned, then returns
// the row that won. Concurrent first assignments resolve to a single row.
func (s *PostgresStore) CreateAssignment(ctx context.Context, a Assignment) (_ Assignment, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "experiment_assignments", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO experiment_assignments (user_id, experiment_name, variant, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, experiment_name) DO NOTHING
	`
	if _, err = s.db.ExecContext(ctx, query, a.UserID, a.Experiment, a.Variant, a.AssignedAt); err != nil {
		return Assignment{}, fmt.Errorf("failed to create assignment: %w", err)
	}

	stored, err := s.selectAssignment(ctx, a.UserID, a.Experiment)
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to read back assignment: %w", err)
	}
	return stored, nil
}

// DeleteAssignment removes a user's assignment.
func (s *PostgresStore) DeleteAssignment(ctx context.Context, userID, experiment string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "experiment_assignments", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	query := `DELETE FROM experiment_assignments WHERE user_id = $1 AND experiment_name = $2`
	if _, err = s.db.ExecContext(ctx, query, userID, experiment); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) selectAssignment(ctx context.Context, userID, experiment string) (Assignment, error) {
	query := `
		SELECT user_id, experiment_name, variant, assigned_at
		FROM experiment_assignments
		WHERE user_id = $1 AND experiment_name = $2
	`
	var a Assignment
	err := s.db.QueryRowContext(ctx, query, userID, experiment).Scan(
		&a.UserID,
		&a.Experiment,
		&a.Variant,
		&a.AssignedAt,
	)
	return a, err
}
