package serverdb

import (
	"encoding/json"
	"fmt"

	"github.com/jvega/inventa/internal/models"
)

// ChangedSince returns every record of the requested entity types changed
// strictly after the given timestamp, tombstones included. An empty tables
// slice means all entity types.
func (db *ServerDB) ChangedSince(businessID string, since int64, tables []string) (map[string][]models.Record, error) {
	if len(tables) == 0 {
		tables = models.EntityTypes
	}

	updates := map[string][]models.Record{}
	for _, et := range tables {
		if !models.IsEntityType(et) {
			return nil, fmt.Errorf("unknown entity type %q", et)
		}
		rows, err := db.conn.Query(
			fmt.Sprintf(`SELECT external_id, payload, updated_at, deleted FROM %s
			 WHERE business_id = ? AND updated_at > ? ORDER BY updated_at ASC`, et),
			businessID, since,
		)
		if err != nil {
			return nil, fmt.Errorf("query changed %s: %w", et, err)
		}

		var recs []models.Record
		for rows.Next() {
			var rec models.Record
			var payload string
			var deleted int
			if err := rows.Scan(&rec.ExternalID, &payload, &rec.UpdatedAt, &deleted); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan changed %s: %w", et, err)
			}
			rec.Deleted = deleted != 0
			if !rec.Deleted {
				rec.Payload = json.RawMessage(payload)
			}
			recs = append(recs, rec)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			updates[et] = recs
		}
	}
	return updates, nil
}

// Counts returns live (non-tombstone) row counts per entity type.
func (db *ServerDB) Counts(businessID string) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, et := range models.EntityTypes {
		var n int64
		err := db.conn.QueryRow(
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE business_id = ? AND deleted = 0`, et),
			businessID,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", et, err)
		}
		counts[et] = n
	}
	return counts, nil
}
