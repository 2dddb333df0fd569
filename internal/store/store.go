// Package store implements the change-tracked local record store. Every
// mutation marks the affected row dirty; the sync engine drains dirty rows,
// and incoming pulled rows are merged without ever clobbering a dirty one.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jvega/inventa/internal/models"
)

const dbFile = ".inventa/local.db"

// Store wraps the local database connection.
type Store struct {
	db      *sql.DB
	baseDir string
	now     func() time.Time
}

// Open opens an existing local database.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: run 'inventa init' first")
	}
	return open(baseDir, dbPath)
}

// Initialize creates the local database, its parent directory, and the schema.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(baseDir, dbPath)
}

func open(baseDir, dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent reads while writes are serialized.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	s := &Store{db: conn, baseDir: baseDir, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an already-open connection and creates the schema.
// Used by tests that run against an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(localSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", SchemaVersion))
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Conn returns the underlying *sql.DB for callers that need transactions
// spanning the store and the outbox.
func (s *Store) Conn() *sql.DB { return s.db }

// BaseDir returns the directory the database lives under.
func (s *Store) BaseDir() string { return s.baseDir }

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// nowMillis returns the current local clock in epoch milliseconds.
func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func checkEntityType(entityType string) error {
	if !models.IsEntityType(entityType) {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Create inserts a new record with a freshly generated external ID and marks
// it dirty. The payload must be one of the models payload structs.
func (s *Store) Create(entityType, businessID string, payload any) (*models.Record, error) {
	return s.create(s.db, entityType, businessID, payload)
}

// CreateTx is Create inside the caller's transaction, so a durable task can
// be enqueued atomically with the record it refers to.
func (s *Store) CreateTx(tx *sql.Tx, entityType, businessID string, payload any) (*models.Record, error) {
	return s.create(tx, entityType, businessID, payload)
}

func (s *Store) create(e execer, entityType, businessID string, payload any) (*models.Record, error) {
	if err := checkEntityType(entityType); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := models.DecodePayload(entityType, raw); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", entityType, err)
	}

	rec := &models.Record{
		ExternalID: uuid.NewString(),
		BusinessID: businessID,
		Payload:    raw,
		UpdatedAt:  s.nowMillis(),
		Dirty:      true,
		Status:     models.SyncPending,
	}
	_, err = e.Exec(
		fmt.Sprintf(`INSERT INTO %s (external_id, business_id, payload, updated_at, dirty, deleted, sync_status)
		 VALUES (?, ?, ?, ?, 1, 0, 'pending')`, entityType),
		rec.ExternalID, rec.BusinessID, string(rec.Payload), rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", entityType, err)
	}
	return rec, nil
}

// Update replaces the payload of an existing record and marks it dirty.
// Updating a tombstone is an error; the deletion has to win.
func (s *Store) Update(entityType, externalID string, payload any) error {
	if err := checkEntityType(entityType); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := models.DecodePayload(entityType, raw); err != nil {
		return fmt.Errorf("invalid %s payload: %w", entityType, err)
	}

	res, err := s.db.Exec(
		fmt.Sprintf(`UPDATE %s SET payload = ?, updated_at = ?, dirty = 1, sync_status = 'pending'
		 WHERE external_id = ? AND deleted = 0`, entityType),
		string(raw), s.nowMillis(), externalID,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", entityType, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s not found", entityType, externalID)
	}
	return nil
}

// SoftDelete turns a record into a dirty tombstone. The row is retained until
// the server acknowledges the deletion.
func (s *Store) SoftDelete(entityType, externalID string) error {
	if err := checkEntityType(entityType); err != nil {
		return err
	}
	res, err := s.db.Exec(
		fmt.Sprintf(`UPDATE %s SET deleted = 1, updated_at = ?, dirty = 1, sync_status = 'pending'
		 WHERE external_id = ? AND deleted = 0`, entityType),
		s.nowMillis(), externalID,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entityType, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s not found", entityType, externalID)
	}
	return nil
}

// Get returns a single record by external ID, tombstones included.
func (s *Store) Get(entityType, externalID string) (*models.Record, error) {
	if err := checkEntityType(entityType); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT external_id, business_id, payload, updated_at, dirty, deleted, sync_status
		 FROM %s WHERE external_id = ?`, entityType),
		externalID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", entityType, err)
	}
	return rec, nil
}

// Query returns non-deleted records for a tenant. Tombstones are only visible
// to the sync engine's dirty-collection path, never to domain callers.
func (s *Store) Query(entityType, businessID string) ([]models.Record, error) {
	if err := checkEntityType(entityType); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT external_id, business_id, payload, updated_at, dirty, deleted, sync_status
		 FROM %s WHERE business_id = ? AND deleted = 0 ORDER BY local_id ASC`, entityType),
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", entityType, err)
	}
	defer rows.Close()

	var recs []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", entityType, err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (*models.Record, error) {
	var rec models.Record
	var payload string
	var dirty, deleted int
	var status string
	if err := r.Scan(&rec.ExternalID, &rec.BusinessID, &payload, &rec.UpdatedAt, &dirty, &deleted, &status); err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	rec.Dirty = dirty != 0
	rec.Deleted = deleted != 0
	rec.Status = models.SyncStatus(status)
	return &rec, nil
}

// DirtyRecord is a dirty row tagged with its entity type and the updated_at
// snapshot used to guard MarkSynced against edits made while a push is in
// flight.
type DirtyRecord struct {
	EntityType string
	Record     models.Record
}

// ListDirty snapshots every dirty record for the tenant across all entity
// types, tombstones included. Order is stable: entity types in registry
// order, rows in creation order. Records the server already rejected are
// excluded; they need a new local edit before another push.
func (s *Store) ListDirty(businessID string) ([]DirtyRecord, error) {
	var out []DirtyRecord
	for _, et := range models.EntityTypes {
		rows, err := s.db.Query(
			fmt.Sprintf(`SELECT external_id, business_id, payload, updated_at, dirty, deleted, sync_status
			 FROM %s WHERE business_id = ? AND dirty = 1 AND sync_status != 'error' ORDER BY local_id ASC`, et),
			businessID,
		)
		if err != nil {
			return nil, fmt.Errorf("list dirty %s: %w", et, err)
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan dirty %s: %w", et, err)
			}
			out = append(out, DirtyRecord{EntityType: et, Record: *rec})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// Ack pairs an acknowledged external ID with the updated_at value the record
// had when it was snapshotted for push.
type Ack struct {
	ExternalID        string
	SnapshotUpdatedAt int64
}

// MarkSynced clears the dirty flag for acknowledged records. The snapshot
// guard keeps a record dirty when it was edited again after being read for
// push: only rows whose updated_at still matches the snapshot are cleared.
// Acknowledged tombstones are purged outright.
func (s *Store) MarkSynced(entityType string, acks []Ack) error {
	if err := checkEntityType(entityType); err != nil {
		return err
	}
	if len(acks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	clear, err := tx.Prepare(
		fmt.Sprintf(`UPDATE %s SET dirty = 0, sync_status = 'synced'
		 WHERE external_id = ? AND updated_at <= ? AND deleted = 0`, entityType))
	if err != nil {
		return fmt.Errorf("prepare mark synced: %w", err)
	}
	defer clear.Close()

	purge, err := tx.Prepare(
		fmt.Sprintf(`DELETE FROM %s WHERE external_id = ? AND updated_at <= ? AND deleted = 1`, entityType))
	if err != nil {
		return fmt.Errorf("prepare tombstone purge: %w", err)
	}
	defer purge.Close()

	for _, a := range acks {
		if _, err := purge.Exec(a.ExternalID, a.SnapshotUpdatedAt); err != nil {
			return fmt.Errorf("purge tombstone %s: %w", a.ExternalID, err)
		}
		if _, err := clear.Exec(a.ExternalID, a.SnapshotUpdatedAt); err != nil {
			return fmt.Errorf("mark synced %s: %w", a.ExternalID, err)
		}
	}
	return tx.Commit()
}

// MarkRejected flags a record the server refused. The row stays dirty; it
// will not be retried until a new local edit changes it.
func (s *Store) MarkRejected(entityType, externalID string) error {
	if err := checkEntityType(entityType); err != nil {
		return err
	}
	_, err := s.db.Exec(
		fmt.Sprintf(`UPDATE %s SET sync_status = 'error' WHERE external_id = ?`, entityType),
		externalID,
	)
	if err != nil {
		return fmt.Errorf("mark rejected %s: %w", entityType, err)
	}
	return nil
}

// DirtyCount returns the number of dirty records across all entity types.
func (s *Store) DirtyCount(businessID string) (int64, error) {
	var total int64
	for _, et := range models.EntityTypes {
		var n int64
		err := s.db.QueryRow(
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE business_id = ? AND dirty = 1`, et),
			businessID,
		).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count dirty %s: %w", et, err)
		}
		total += n
	}
	return total, nil
}

// AdoptBusiness re-homes every record from one tenant scope to another. Used
// on first login, when records created offline under the placeholder scope
// become owned by the authenticated business.
func (s *Store) AdoptBusiness(from, to string) (int64, error) {
	if from == to || from == "" || to == "" {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var moved int64
	for _, et := range models.EntityTypes {
		res, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET business_id = ? WHERE business_id = ?`, et),
			to, from,
		)
		if err != nil {
			return 0, fmt.Errorf("adopt %s: %w", et, err)
		}
		n, _ := res.RowsAffected()
		moved += n
	}
	// The placeholder scope never pulled, so its watermark is dropped
	// rather than merged.
	if _, err := tx.Exec(`DELETE FROM sync_state WHERE business_id = ?`, from); err != nil {
		return 0, fmt.Errorf("adopt sync_state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return moved, nil
}

// LastPulledAt returns the pull watermark for the tenant, zero when no pull
// has completed yet.
func (s *Store) LastPulledAt(businessID string) (int64, error) {
	var v int64
	err := s.db.QueryRow(`SELECT last_pulled_at FROM sync_state WHERE business_id = ?`, businessID).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}
