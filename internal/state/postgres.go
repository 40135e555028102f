package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-pool-cycler/internal/observability"
)

// PostgresStore keeps the cycle record as a single JSONB row, for
// deployments where local disk is ephemeral.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

const createStateTableSQL = `
CREATE TABLE IF NOT EXISTS bot_state (
    id         INT PRIMARY KEY,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresStore connects to Postgres and ensures the state table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool wraps an existing pool, ensuring the schema.
func NewPostgresStoreWithPool(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createStateTableSQL); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Read loads the record, seeding and persisting the default when no
// row exists yet.
func (s *PostgresStore) Read(ctx context.Context) (*CycleRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM bot_state WHERE id = 1`,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		record := Default()
		if writeErr := s.Write(ctx, record); writeErr != nil {
			return nil, writeErr
		}
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cycle record: %w", err)
	}

	var record CycleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse cycle record: %w", err)
	}
	return &record, nil
}

// Write upserts the single row durably.
func (s *PostgresStore) Write(ctx context.Context, record *CycleRecord) error {
	err := s.write(ctx, record)
	observability.RecordStateWrite(err)
	if err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func (s *PostgresStore) write(ctx context.Context, record *CycleRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode cycle record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO bot_state (id, record, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET record = $1, updated_at = now()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert cycle record: %w", err)
	}
	return nil
}
