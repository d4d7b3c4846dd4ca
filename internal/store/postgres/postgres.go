// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req *model.Request) error {
	return queryCreateRequest(ctx, s.db, req)
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	return queryGetRequest(ctx, s.db, id)
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter model.Filter) ([]*model.Request, int, error) {
	return queryListRequests(ctx, s.db, filter)
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*model.Request, error) {
	return queryListPending(ctx, s.db)
}

func (s *PostgresStore) ListUnnotified(ctx context.Context) ([]*model.Request, error) {
	return queryListUnnotified(ctx, s.db)
}

func (s *PostgresStore) Transition(ctx context.Context, id string, target model.Status, respondedBy, reason string) (*model.Request, error) {
	return queryTransition(ctx, s.db, id, target, respondedBy, reason)
}

func (s *PostgresStore) MarkNotified(ctx context.Context, id string) error {
	return queryMarkNotified(ctx, s.db, id)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, requestID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, requestID)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	return queryStats(ctx, s.db)
}

func (s *PostgresStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	return queryCleanup(ctx, s.db, before)
}
