package serverdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jvega/inventa/internal/models"
)

// AppliedRecord is one accepted record in a batch result.
type AppliedRecord struct {
	ExternalID string `json:"externalId"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// RejectedRecord is one refused record with the reason.
type RejectedRecord struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}

// EntityResult reports per-entity-type outcomes of a batch.
type EntityResult struct {
	Applied  []AppliedRecord  `json:"applied"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// ApplyBatch ingests a batch of pushed changes for one tenant in a single
// transaction. Individual records are validated and rejected without
// aborting the batch; only storage failures roll the whole thing back.
//
// Conflict resolution is last write wins: an incoming record overwrites the
// stored one and gets a fresh server timestamp. A record identical to the
// stored state is acknowledged without a write, so re-pushing the same batch
// is a no-op and does not churn other devices' pulls.
func (db *ServerDB) ApplyBatch(businessID, deviceID string, changes map[string][]models.Record) (map[string]EntityResult, int64, error) {
	serverTS := db.nowMillis()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	results := map[string]EntityResult{}

	// Registry order so sessions land before their counted items.
	for _, et := range models.EntityTypes {
		recs, ok := changes[et]
		if !ok {
			continue
		}
		res := EntityResult{}
		for _, rec := range recs {
			applied, err := db.applyRecord(tx, et, businessID, rec, serverTS)
			if err != nil {
				var rej *rejectError
				if errors.As(err, &rej) {
					res.Rejected = append(res.Rejected, RejectedRecord{ExternalID: rec.ExternalID, Reason: rej.reason})
					continue
				}
				return nil, 0, err
			}
			res.Applied = append(res.Applied, *applied)
		}
		results[et] = res
	}

	if deviceID != "" {
		if err := upsertSyncCursor(tx, businessID, deviceID, serverTS, db.now().UTC()); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit batch: %w", err)
	}
	return results, serverTS, nil
}

// rejectError marks a per-record validation failure that must not abort the
// surrounding batch transaction.
type rejectError struct {
	reason string
}

func (e *rejectError) Error() string { return e.reason }

func reject(format string, args ...any) error {
	return &rejectError{reason: fmt.Sprintf(format, args...)}
}

func (db *ServerDB) applyRecord(tx *sql.Tx, entityType, businessID string, rec models.Record, serverTS int64) (*AppliedRecord, error) {
	if rec.ExternalID == "" {
		return nil, reject("missing external id")
	}

	var existingPayload string
	var existingUpdatedAt int64
	var existingDeleted int
	var existingBusiness string
	err := tx.QueryRow(
		fmt.Sprintf(`SELECT payload, updated_at, deleted, business_id FROM %s WHERE external_id = ?`, entityType),
		rec.ExternalID,
	).Scan(&existingPayload, &existingUpdatedAt, &existingDeleted, &existingBusiness)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("probe %s %s: %w", entityType, rec.ExternalID, err)
	}
	if exists && existingBusiness != businessID {
		// External IDs are UUIDs; a cross-tenant collision means a
		// forged or corrupted batch.
		return nil, reject("external id belongs to another business")
	}

	if rec.Deleted {
		if exists && existingDeleted != 0 {
			return &AppliedRecord{ExternalID: rec.ExternalID, UpdatedAt: existingUpdatedAt}, nil
		}
		_, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (external_id, business_id, payload, updated_at, deleted)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT(external_id) DO UPDATE SET deleted = 1, updated_at = excluded.updated_at`, entityType),
			rec.ExternalID, businessID, existingPayload, serverTS,
		)
		if err != nil {
			return nil, fmt.Errorf("tombstone %s %s: %w", entityType, rec.ExternalID, err)
		}
		return &AppliedRecord{ExternalID: rec.ExternalID, UpdatedAt: serverTS}, nil
	}

	decoded, err := models.DecodePayload(entityType, rec.Payload)
	if err != nil {
		return nil, reject("%v", err)
	}

	if entityType == models.EntityProducts {
		p := decoded.(models.ProductPayload)
		if p.SKU != "" {
			dup, err := skuTaken(tx, businessID, rec.ExternalID, p.SKU)
			if err != nil {
				return nil, err
			}
			if dup {
				return nil, reject("sku %q already in use", p.SKU)
			}
		}
	}

	if entityType == models.EntitySessions {
		p := decoded.(models.SessionPayload)
		if p.Number == "" {
			number, err := db.nextSessionNumber(tx, businessID)
			if err != nil {
				return nil, err
			}
			p.Number = number
			decoded = p
		}
	}

	// Canonical form so identical pushes compare equal regardless of
	// the client's JSON formatting.
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", entityType, err)
	}

	if exists && existingDeleted == 0 && existingPayload == string(canonical) {
		return &AppliedRecord{ExternalID: rec.ExternalID, UpdatedAt: existingUpdatedAt}, nil
	}

	_, err = tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (external_id, business_id, payload, updated_at, deleted)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(external_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at, deleted = 0`, entityType),
		rec.ExternalID, businessID, string(canonical), serverTS,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert %s %s: %w", entityType, rec.ExternalID, err)
	}
	return &AppliedRecord{ExternalID: rec.ExternalID, UpdatedAt: serverTS}, nil
}

func skuTaken(tx *sql.Tx, businessID, externalID, sku string) (bool, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM products
		 WHERE business_id = ? AND external_id != ? AND deleted = 0
		 AND json_extract(payload, '$.sku') = ?`,
		businessID, externalID, sku,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check sku: %w", err)
	}
	return n > 0, nil
}

// nextSessionNumber assigns the next INV-YYYYMMDD-NNN number for the tenant,
// counting per day.
func (db *ServerDB) nextSessionNumber(tx *sql.Tx, businessID string) (string, error) {
	day := db.now().UTC().Format("20060102")
	prefix := "INV-" + day + "-"

	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM sessions
		 WHERE business_id = ? AND json_extract(payload, '$.number') LIKE ?`,
		businessID, prefix+"%",
	).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("count session numbers: %w", err)
	}
	return fmt.Sprintf("%s%03d", prefix, n+1), nil
}
