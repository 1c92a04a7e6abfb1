// Package sqlstore implements store.Primary on an embedded SQLite database,
// or on PostgreSQL when given a postgres:// URL.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLStore implements store.Primary with one table per collection.
type SQLStore struct {
	dsn     string
	dialect dialect
	db      *sql.DB
}

// Compile-time check that SQLStore implements store.Primary.
var _ store.Primary = (*SQLStore)(nil)

// New returns an unopened store for the given database URL. An empty URL
// or "off" yields store.ErrUnavailable.
func New(url string) (*SQLStore, error) {
	if url == "" || url == "off" {
		return nil, store.ErrUnavailable
	}
	d, dsn, err := parseURL(url)
	if err != nil {
		return nil, store.Errorf(store.KindUnavailable, "parse database url", err)
	}
	return &SQLStore{dsn: dsn, dialect: d}, nil
}

// newWithDB wraps an existing connection. Used by tests with sqlmock.
func newWithDB(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{dialect: d, db: db}
}

// Dialect returns the name of the SQL engine in use.
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Open connects to the database and verifies the connection.
func (s *SQLStore) Open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return store.Errorf(store.KindConnection, "open database", err)
	}

	if s.dialect.single {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return store.Errorf(store.KindConnection, "ping database", err)
	}
	s.db = db
	return nil
}

// EnsureSchema runs any pending migrations. Already-applied migrations are
// a no-op, so this is safe on every start.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return store.Errorf(store.KindSchema, "ensure schema", errors.New("database not open"))
	}
	if err := runMigrations(s.db, s.dialect); err != nil {
		return store.Errorf(store.KindSchema, "ensure schema", err)
	}
	return nil
}

func runMigrations(db *sql.DB, d dialect) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := d.migrate(db)
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, d.name, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Query returns every row of table ordered by key. Only the settings table
// and the ledger collections may be queried.
func (s *SQLStore) Query(ctx context.Context, table string) ([]store.Row, error) {
	if !knownTable(table) {
		return nil, store.Errorf(store.KindQuery, "query "+table, fmt.Errorf("unknown table %q", table))
	}
	if s.db == nil {
		return nil, store.Errorf(store.KindQuery, "query "+table, errors.New("database not open"))
	}
	rows, err := queryRows(ctx, s.db, table)
	if err != nil {
		return nil, store.Errorf(store.KindQuery, "query "+table, err)
	}
	return rows, nil
}

// BulkWrite begins a transaction, applies every statement of ws in order,
// and commits. The first failing statement rolls the whole set back.
func (s *SQLStore) BulkWrite(ctx context.Context, ws store.WriteSet) error {
	if s.db == nil {
		return store.Errorf(store.KindWrite, "bulk write", errors.New("database not open"))
	}
	for _, st := range ws {
		if !knownTable(st.Table) {
			return store.Errorf(store.KindWrite, "bulk write", fmt.Errorf("unknown table %q", st.Table))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Errorf(store.KindWrite, "begin transaction", err)
	}

	for i, st := range ws {
		if err := execStatement(ctx, tx, s.dialect, st); err != nil {
			_ = tx.Rollback()
			return store.Errorf(store.KindWrite, fmt.Sprintf("statement %d on %s", i, st.Table), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.Errorf(store.KindWrite, "commit transaction", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func knownTable(table string) bool {
	if table == store.SettingsTable {
		return true
	}
	return model.Collection(table).IsValid()
}
