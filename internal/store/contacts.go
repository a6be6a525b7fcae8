package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertContact inserts the contact or merges it into the existing row
// matched by (user_id, remote_jid). Only non-null incoming fields overwrite;
// a null incoming name never clears a stored one. Returns the stored row.
func (s *Store) UpsertContact(ctx context.Context, c *Contact) (*Contact, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (user_id, wa_id, remote_jid, name, profile_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, remote_jid) DO UPDATE SET
		     name = COALESCE(excluded.name, contacts.name),
		     profile_name = COALESCE(excluded.profile_name, contacts.profile_name),
		     updated_at = excluded.updated_at
		 RETURNING id, user_id, wa_id, remote_jid, name, profile_name, created_at, updated_at`,
		c.UserID, c.WaID, c.RemoteJID, strPtr(c.Name), strPtr(c.ProfileName), now, now)

	return scanContactRow(row)
}

// ContactByID returns the contact only when it belongs to the user.
func (s *Store) ContactByID(ctx context.Context, userID, contactID int64) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, wa_id, remote_jid, name, profile_name, created_at, updated_at
		 FROM contacts WHERE id = $1 AND user_id = $2`, contactID, userID)
	return scanContactRow(row)
}

// ContactByRemoteJID looks a contact up by its gateway identifier.
func (s *Store) ContactByRemoteJID(ctx context.Context, userID int64, remoteJID string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, wa_id, remote_jid, name, profile_name, created_at, updated_at
		 FROM contacts WHERE user_id = $1 AND remote_jid = $2`, userID, remoteJID)
	return scanContactRow(row)
}

// ListContacts pages through the user's contacts.
func (s *Store) ListContacts(ctx context.Context, userID int64, offset, limit int) ([]*Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, wa_id, remote_jid, name, profile_name, created_at, updated_at
		 FROM contacts WHERE user_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContactRow(row *sql.Row) (*Contact, error) {
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanContact(row rowScanner) (*Contact, error) {
	var (
		c       Contact
		name    sql.NullString
		profile sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.WaID, &c.RemoteJID, &name, &profile,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Name = nullString(name)
	c.ProfileName = nullString(profile)
	return &c, nil
}
