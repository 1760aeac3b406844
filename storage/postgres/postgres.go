// Package postgres implements storage.KeyStore backed by PostgreSQL.
//
// All keys live in one table with a BYTEA primary key. Keys and values are
// passed as raw bytes, so any byte string the other backends accept (NUL,
// invalid UTF-8) round-trips unchanged. Connections are opened
// with synchronous_commit=off: a commit returns once it is in the WAL buffer,
// without waiting for the WAL flush. This mirrors the relaxed durability of
// the BBolt backend; a server crash can lose the most recent commits but never
// corrupts the table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sks/storage"
)

// Store implements storage.KeyStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.KeyStore = (*Store)(nil)

// New returns a Store backed by the given pgx connection pool. The caller is
// responsible for the schema; see EnsureSchema.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open creates a connection pool from a DSN, ensures the schema exists and
// returns a new Store. When fsync is false every connection runs with
// synchronous_commit=off.
func Open(ctx context.Context, dsn string, fsync bool) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storage.Fault("open", "", fmt.Errorf("parsing postgres dsn: %w", err))
	}
	if !fsync {
		cfg.ConnConfig.RuntimeParams["synchronous_commit"] = "off"
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storage.Fault("open", "", fmt.Errorf("connecting to postgres: %w", err))
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, storage.Fault("open", "", fmt.Errorf("ensuring schema: %w", err))
	}
	return New(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM session_keys WHERE key = $1`, []byte(key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", storage.Fault("get", key, err)
	}
	return string(value), nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_keys (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		[]byte(key), []byte(value))
	return storage.Fault("put", key, err)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_keys WHERE key = $1`, []byte(key))
	return storage.Fault("remove", key, err)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
