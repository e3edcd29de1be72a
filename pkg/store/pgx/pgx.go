// Package pgx implements store.Store on PostgreSQL via pgx. Schema is
// managed with embedded golang-migrate migrations.
package pgx

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// PgxStore implements store.Store against a PostgreSQL connection or pool.
type PgxStore struct {
	conn pgxIConn
}

// NewPgxStoreWithConnection creates a PgxStore using an existing database
// connection. The schema must already be migrated, see Migrate.
func NewPgxStoreWithConnection(conn pgxIConn) *PgxStore {
	return &PgxStore{conn: conn}
}

// Migrate applies the embedded schema migrations against databaseURL.
// A database that is already up to date is not an error.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
