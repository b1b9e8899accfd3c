// Package db provides PostgreSQL-backed repositories for user schedules and
// records. Repositories accept a DBTX so the same code runs against a
// *pgxpool.Pool or inside a pgx.Tx.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"snipper/internal/config"
	"snipper/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens a connection pool tuned by cfg and verifies connectivity.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Postgres SQLSTATE codes for content the schema refuses.
const (
	pgCheckViolation           = "23514"
	pgStringDataTruncation     = "22001"
	pgInvalidTextRepresent     = "22P02"
	pgCharacterNotInRepertoire = "22021"
)

// storeError maps a driver error to the store taxonomy: timeouts become
// ErrCodeStoreTimeout, everything else ErrCodeInternalDB.
func storeError(msg string, err error) error {
	if isTimeout(err) {
		return types.NewAppError(types.ErrCodeStoreTimeout, msg, err)
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)
}

// isRejected reports whether Postgres refused the row's content itself.
func isRejected(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgCheckViolation, pgStringDataTruncation, pgInvalidTextRepresent, pgCharacterNotInRepertoire:
		return true
	}
	return false
}
