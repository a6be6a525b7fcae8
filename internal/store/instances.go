package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const instanceColumns = `id, user_id, instance_name, status, qr_code, qr_code_updated_at,
	phone_number, profile_name, last_connected_at, raw_data, created_at, updated_at`

func scanInstance(row *sql.Row) (*Instance, error) {
	var (
		inst     Instance
		qrCode   sql.NullString
		qrAt     sql.NullTime
		phone    sql.NullString
		profile  sql.NullString
		lastConn sql.NullTime
		rawData  sql.NullString
	)

	err := row.Scan(&inst.ID, &inst.UserID, &inst.InstanceName, &inst.Status,
		&qrCode, &qrAt, &phone, &profile, &lastConn, &rawData,
		&inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	inst.QRCode = nullString(qrCode)
	inst.QRCodeUpdatedAt = nullTime(qrAt)
	inst.PhoneNumber = nullString(phone)
	inst.ProfileName = nullString(profile)
	inst.LastConnectedAt = nullTime(lastConn)
	if rawData.Valid {
		inst.RawData = []byte(rawData.String)
	}
	return &inst, nil
}

// InstanceByUser returns the user's instance row, ErrNotFound when the user
// has never connected.
func (s *Store) InstanceByUser(ctx context.Context, userID int64) (*Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM evolution_instances WHERE user_id = $1`, userID)
	return scanInstance(row)
}

// InstanceByName resolves a gateway instance name back to its row. Webhook
// ingestion uses this reverse mapping.
func (s *Store) InstanceByName(ctx context.Context, instanceName string) (*Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM evolution_instances WHERE instance_name = $1`, instanceName)
	return scanInstance(row)
}

// CreateInstance inserts the row for a user if absent and returns it. Safe
// under concurrent calls: the user_id uniqueness constraint arbitrates and
// the surviving row is read back.
func (s *Store) CreateInstance(ctx context.Context, userID int64, instanceName string) (*Instance, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evolution_instances (user_id, instance_name, status, created_at, updated_at)
		 VALUES ($1, $2, 'disconnected', $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, instanceName, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	return s.InstanceByUser(ctx, userID)
}

// SaveInstance writes the mutable instance fields back.
func (s *Store) SaveInstance(ctx context.Context, inst *Instance) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE evolution_instances
		 SET status = $1, qr_code = $2, qr_code_updated_at = $3, phone_number = $4,
		     profile_name = $5, last_connected_at = $6, raw_data = $7, updated_at = $8
		 WHERE id = $9`,
		inst.Status, strPtr(inst.QRCode), timePtr(inst.QRCodeUpdatedAt),
		strPtr(inst.PhoneNumber), strPtr(inst.ProfileName), timePtr(inst.LastConnectedAt),
		bytesOrNil(inst.RawData), now, inst.ID)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	inst.UpdatedAt = now
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func strPtr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func bytesOrNil(v []byte) interface{} {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}
