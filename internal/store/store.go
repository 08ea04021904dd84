// Package store is the pgx-backed persistence layer for the esign service:
// templates, envelopes, recipients, and the append-only envelope log
// (spec.md §3), plus the golang-migrate-driven schema in ./migrations.
//
// Grounded on rendis-doc-assembly's apps/signing-worker/internal/adapter/db
// package (pgxpool.Pool, hand-written SQL, scan-per-row repositories) and
// its core/internal/testing/testhelper container package for the
// golang-migrate wiring.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrate

	"github.com/esignhq/esign/internal/esignerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a pgx connection pool with the esign schema's repositories.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and pings it. Callers must call Migrate before first
// use against a fresh database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "store.Open", fmt.Errorf("create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, esignerr.New(esignerr.StorageError, "store.Open", fmt.Errorf("ping: %w", err))
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pgxpool.Pool for callers (e.g. internal/tasks)
// that need to share a connection pool with river's pgx driver.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies every pending migration in ./migrations against dsn. It
// opens its own database/sql connection (golang-migrate's postgres driver
// requires one) independent of the pgxpool used for steady-state queries.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.Migrate", fmt.Errorf("open migration source: %w", err))
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.Migrate", fmt.Errorf("open sql.DB: %w", err))
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.Migrate", fmt.Errorf("postgres driver: %w", err))
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return esignerr.New(esignerr.StorageError, "store.Migrate", fmt.Errorf("new migrator: %w", err))
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return esignerr.New(esignerr.StorageError, "store.Migrate", fmt.Errorf("apply migrations: %w", err))
	}
	return nil
}
