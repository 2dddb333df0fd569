package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncCursor tracks when a device last pushed for a business. Cursors are
// informational; pull state lives on the client.
type SyncCursor struct {
	BusinessID   string
	DeviceID     string
	LastPushedAt int64
	LastSyncAt   *time.Time
}

func upsertSyncCursor(tx *sql.Tx, businessID, deviceID string, lastPushedAt int64, at time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO sync_cursors (business_id, device_id, last_pushed_at, last_sync_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(business_id, device_id)
		DO UPDATE SET last_pushed_at = excluded.last_pushed_at, last_sync_at = excluded.last_sync_at
	`, businessID, deviceID, lastPushedAt, at)
	if err != nil {
		return fmt.Errorf("upsert sync cursor: %w", err)
	}
	return nil
}

// GetSyncCursor returns the cursor for a business/device pair, or nil if the
// device has never pushed.
func (db *ServerDB) GetSyncCursor(businessID, deviceID string) (*SyncCursor, error) {
	c := &SyncCursor{}
	err := db.conn.QueryRow(
		`SELECT business_id, device_id, last_pushed_at, last_sync_at FROM sync_cursors WHERE business_id = ? AND device_id = ?`,
		businessID, deviceID,
	).Scan(&c.BusinessID, &c.DeviceID, &c.LastPushedAt, &c.LastSyncAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}
	return c, nil
}

// ListSyncCursors returns every device cursor for a business.
func (db *ServerDB) ListSyncCursors(businessID string) ([]SyncCursor, error) {
	rows, err := db.conn.Query(
		`SELECT business_id, device_id, last_pushed_at, last_sync_at FROM sync_cursors WHERE business_id = ? ORDER BY device_id`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync cursors: %w", err)
	}
	defer rows.Close()

	var cursors []SyncCursor
	for rows.Next() {
		var c SyncCursor
		if err := rows.Scan(&c.BusinessID, &c.DeviceID, &c.LastPushedAt, &c.LastSyncAt); err != nil {
			return nil, fmt.Errorf("scan sync cursor: %w", err)
		}
		cursors = append(cursors, c)
	}
	return cursors, rows.Err()
}
