// Package storetest opens throwaway in-memory SQLite databases mirroring
// the Postgres schema, so store and domain tests can exercise the real
// upsert/dedup SQL without a database server.
package storetest

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/whatsapp-saas/go-evolution-service/internal/store"
)

var schema = []string{
	`CREATE TABLE evolution_instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		instance_name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'disconnected',
		qr_code TEXT,
		qr_code_updated_at TIMESTAMP,
		phone_number TEXT,
		profile_name TEXT,
		last_connected_at TIMESTAMP,
		raw_data TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		wa_id TEXT NOT NULL,
		remote_jid TEXT NOT NULL,
		name TEXT,
		profile_name TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, remote_jid)
	)`,
	`CREATE TABLE messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		contact_id INTEGER NOT NULL REFERENCES contacts(id),
		external_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'evolution_api',
		message_type TEXT NOT NULL,
		content TEXT,
		media_url TEXT,
		is_outbound BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'received',
		sent_at TIMESTAMP,
		raw_data TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// New returns a Store backed by a fresh in-memory database. The handle is
// closed when the test finishes.
func New(t *testing.T) *store.Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A second pool connection would see an empty in-memory database.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	t.Cleanup(func() { db.Close() })
	return store.New(db)
}
