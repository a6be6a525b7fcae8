package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertMessage stores the message unless a row with the same external_id
// already exists. The uniqueness constraint arbitrates concurrent writers;
// there is deliberately no read-before-write. Returns whether a row was
// inserted.
func (s *Store) InsertMessage(ctx context.Context, m *Message) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, contact_id, external_id, source, message_type,
		     content, media_url, is_outbound, status, sent_at, raw_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (external_id) DO NOTHING`,
		m.UserID, m.ContactID, m.ExternalID, m.Source, m.MessageType,
		strPtr(m.Content), strPtr(m.MediaURL), m.IsOutbound, m.Status,
		timePtr(m.SentAt), bytesOrNil(m.RawData), now)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message result: %w", err)
	}
	return affected > 0, nil
}

// MessageByExternalID returns the stored row for a gateway message id.
func (s *Store) MessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE external_id = $1`, externalID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListMessages pages through a contact's messages, newest first. When
// notBefore is non-zero, older messages are filtered out (archival cutoff).
func (s *Store) ListMessages(ctx context.Context, userID, contactID int64, offset, limit int, notBefore time.Time) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + messageColumns + ` FROM messages
		 WHERE user_id = $1 AND contact_id = $2`
	args := []interface{}{userID, contactID}

	if !notBefore.IsZero() {
		query += ` AND (sent_at IS NULL OR sent_at >= $3)`
		args = append(args, notBefore)
		query += ` ORDER BY sent_at DESC NULLS LAST, id DESC LIMIT $4 OFFSET $5`
	} else {
		query += ` ORDER BY sent_at DESC NULLS LAST, id DESC LIMIT $3 OFFSET $4`
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountStats returns aggregate counts for the user's dashboard.
func (s *Store) CountStats(ctx context.Context, userID int64) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     COUNT(*),
		     COUNT(*) FILTER (WHERE NOT is_outbound),
		     COUNT(*) FILTER (WHERE is_outbound)
		 FROM messages WHERE user_id = $1`, userID).
		Scan(&st.TotalMessages, &st.InboundMessages, &st.OutboundMessages)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = $1`, userID).
		Scan(&st.TotalContacts)
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}
	return &st, nil
}

const messageColumns = `id, user_id, contact_id, external_id, source, message_type,
	content, media_url, is_outbound, status, sent_at, raw_data, created_at`

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m       Message
		content sql.NullString
		media   sql.NullString
		sentAt  sql.NullTime
		rawData sql.NullString
	)
	err := row.Scan(&m.ID, &m.UserID, &m.ContactID, &m.ExternalID, &m.Source,
		&m.MessageType, &content, &media, &m.IsOutbound, &m.Status,
		&sentAt, &rawData, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Content = nullString(content)
	m.MediaURL = nullString(media)
	m.SentAt = nullTime(sentAt)
	if rawData.Valid {
		m.RawData = []byte(rawData.String)
	}
	return &m, nil
}
