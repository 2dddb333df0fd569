package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jvega/inventa/internal/models"
)

// PullResult summarizes one ApplyPull call.
type PullResult struct {
	Applied   int
	Skipped   int
	Deleted   int
	Watermark int64
}

// ApplyPull merges a page of server records into the local store inside a
// single transaction and advances the pull watermark only after every record
// in the page has been applied. A failure rolls back both the rows and the
// watermark, so the next pull replays the same page.
//
// Merge policy per record:
//   - no local row: insert clean (or skip entirely for a tombstone)
//   - local row clean: overwrite with server state; a tombstone removes the
//     row physically since the server already forgot it
//   - local row dirty: keep the local version, the next push resolves it
func (s *Store) ApplyPull(businessID string, updates map[string][]models.Record, serverTimestamp int64) (*PullResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res := &PullResult{}
	watermark := int64(0)

	for _, et := range models.EntityTypes {
		recs, ok := updates[et]
		if !ok {
			continue
		}
		for _, rec := range recs {
			if rec.UpdatedAt > watermark {
				watermark = rec.UpdatedAt
			}

			var localDirty, localDeleted int
			err := tx.QueryRow(
				fmt.Sprintf(`SELECT dirty, deleted FROM %s WHERE external_id = ?`, et),
				rec.ExternalID,
			).Scan(&localDirty, &localDeleted)

			switch {
			case errors.Is(err, sql.ErrNoRows):
				if rec.Deleted {
					// Never seen locally; nothing to tombstone.
					res.Skipped++
					continue
				}
				_, err := tx.Exec(
					fmt.Sprintf(`INSERT INTO %s (external_id, business_id, payload, updated_at, dirty, deleted, sync_status)
					 VALUES (?, ?, ?, ?, 0, 0, 'synced')`, et),
					rec.ExternalID, businessID, string(rec.Payload), rec.UpdatedAt,
				)
				if err != nil {
					return nil, fmt.Errorf("insert pulled %s %s: %w", et, rec.ExternalID, err)
				}
				res.Applied++

			case err != nil:
				return nil, fmt.Errorf("probe %s %s: %w", et, rec.ExternalID, err)

			case localDirty != 0:
				// Local edit in flight, local wins until pushed.
				res.Skipped++

			case rec.Deleted:
				_, err := tx.Exec(
					fmt.Sprintf(`DELETE FROM %s WHERE external_id = ?`, et),
					rec.ExternalID,
				)
				if err != nil {
					return nil, fmt.Errorf("apply remote delete %s %s: %w", et, rec.ExternalID, err)
				}
				res.Deleted++

			default:
				_, err := tx.Exec(
					fmt.Sprintf(`UPDATE %s SET payload = ?, updated_at = ?, dirty = 0, deleted = 0, sync_status = 'synced'
					 WHERE external_id = ?`, et),
					string(rec.Payload), rec.UpdatedAt, rec.ExternalID,
				)
				if err != nil {
					return nil, fmt.Errorf("apply pulled %s %s: %w", et, rec.ExternalID, err)
				}
				res.Applied++
			}
		}
	}

	// The watermark tracks the newest record actually seen, never the
	// server's clock: the server stamps its timestamp after querying, so
	// adopting it could skip a record committed in between. An empty page
	// leaves the watermark untouched.
	if watermark > 0 {
		_, err = tx.Exec(
			`INSERT INTO sync_state (business_id, last_pulled_at, last_sync_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(business_id) DO UPDATE SET
			   last_pulled_at = MAX(last_pulled_at, excluded.last_pulled_at),
			   last_sync_at = excluded.last_sync_at`,
			businessID, watermark, serverTimestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("advance watermark: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pull: %w", err)
	}
	res.Watermark = watermark
	return res, nil
}
