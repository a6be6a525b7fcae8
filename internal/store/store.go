package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *sql.DB
}

// Open connects to Postgres, configures the pool and runs migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database store initialized successfully")

	return s, nil
}

// New wraps an existing database handle without running migrations. Used by
// tests that bring their own schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS evolution_instances (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		instance_name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'disconnected',
		qr_code TEXT,
		qr_code_updated_at TIMESTAMPTZ,
		phone_number TEXT,
		profile_name TEXT,
		last_connected_at TIMESTAMPTZ,
		raw_data TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		wa_id TEXT NOT NULL,
		remote_jid TEXT NOT NULL,
		name TEXT,
		profile_name TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, remote_jid)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		contact_id BIGINT NOT NULL REFERENCES contacts(id),
		external_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'evolution_api',
		message_type TEXT NOT NULL,
		content TEXT,
		media_url TEXT,
		is_outbound BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'received',
		sent_at TIMESTAMPTZ,
		raw_data TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user_contact ON messages (user_id, contact_id)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_user ON contacts (user_id)`,
}

// Migrate applies the schema. Statements are idempotent so startup is safe
// to repeat.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}
