package store

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jvega/inventa/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewFromDB(db)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

func clientPayload(name string) models.ClientPayload {
	return models.ClientPayload{Name: name}
}

func TestCreateMarksDirty(t *testing.T) {
	s := testStore(t)

	rec, err := s.Create(models.EntityClients, "biz1", clientPayload("Acme"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ExternalID == "" {
		t.Fatal("expected generated external ID")
	}

	got, err := s.Get(models.EntityClients, rec.ExternalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("record not found after create")
	}
	if !got.Dirty {
		t.Error("new record should be dirty")
	}
	if got.Status != models.SyncPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	s := testStore(t)

	if _, err := s.Create(models.EntityClients, "biz1", clientPayload("")); err == nil {
		t.Error("expected error for client without name")
	}
	if _, err := s.Create("gadgets", "biz1", clientPayload("x")); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestUpdateBumpsTimestampAndDirties(t *testing.T) {
	s := testStore(t)
	rec, err := s.Create(models.EntityClients, "biz1", clientPayload("Acme"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.MarkSynced(models.EntityClients, []Ack{{rec.ExternalID, rec.UpdatedAt}}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	s.now = func() time.Time { return time.UnixMilli(rec.UpdatedAt + 100) }
	if err := s.Update(models.EntityClients, rec.ExternalID, clientPayload("Acme Ltd")); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.Get(models.EntityClients, rec.ExternalID)
	if !got.Dirty {
		t.Error("updated record should be dirty again")
	}
	if got.UpdatedAt != rec.UpdatedAt+100 {
		t.Errorf("updated_at = %d, want %d", got.UpdatedAt, rec.UpdatedAt+100)
	}
}

func TestSoftDeleteKeepsTombstone(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Acme"))

	if err := s.SoftDelete(models.EntityClients, rec.ExternalID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Domain reads no longer see it.
	list, err := s.Query(models.EntityClients, "biz1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("query returned %d records, want 0", len(list))
	}

	// Sync still does.
	dirty, err := s.ListDirty("biz1")
	if err != nil {
		t.Fatalf("list dirty: %v", err)
	}
	if len(dirty) != 1 || !dirty[0].Record.Deleted {
		t.Fatalf("expected one dirty tombstone, got %+v", dirty)
	}

	// Deleting twice fails, as does updating a tombstone.
	if err := s.SoftDelete(models.EntityClients, rec.ExternalID); err == nil {
		t.Error("expected error deleting a tombstone")
	}
	if err := s.Update(models.EntityClients, rec.ExternalID, clientPayload("x")); err == nil {
		t.Error("expected error updating a tombstone")
	}
}

func TestMarkSyncedPurgesAckedTombstone(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Acme"))
	if err := s.SoftDelete(models.EntityClients, rec.ExternalID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	dirty, _ := s.ListDirty("biz1")
	if err := s.MarkSynced(models.EntityClients, []Ack{{rec.ExternalID, dirty[0].Record.UpdatedAt}}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.Get(models.EntityClients, rec.ExternalID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("acknowledged tombstone should be purged")
	}
}

func TestMarkSyncedSnapshotGuard(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Acme"))

	// Snapshot taken for push, then the record is edited before the ack
	// lands. The re-edit must stay dirty.
	snapshot := rec.UpdatedAt
	s.now = func() time.Time { return time.UnixMilli(snapshot + 50) }
	if err := s.Update(models.EntityClients, rec.ExternalID, clientPayload("Acme Ltd")); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.MarkSynced(models.EntityClients, []Ack{{rec.ExternalID, snapshot}}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, _ := s.Get(models.EntityClients, rec.ExternalID)
	if !got.Dirty {
		t.Error("record edited after snapshot must remain dirty")
	}

	var payload models.ClientPayload
	json.Unmarshal(got.Payload, &payload)
	if payload.Name != "Acme Ltd" {
		t.Errorf("payload name = %q, want re-edited value", payload.Name)
	}
}

func TestMarkRejectedStaysDirty(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityProducts, "biz1", models.ProductPayload{Name: "Widget"})

	if err := s.MarkRejected(models.EntityProducts, rec.ExternalID); err != nil {
		t.Fatalf("mark rejected: %v", err)
	}
	got, _ := s.Get(models.EntityProducts, rec.ExternalID)
	if got.Status != models.SyncError {
		t.Errorf("status = %q, want error", got.Status)
	}
	if !got.Dirty {
		t.Error("rejected record must stay dirty")
	}

	// Rejected records are not re-pushed until edited again.
	dirty, _ := s.ListDirty("biz1")
	if len(dirty) != 0 {
		t.Errorf("rejected record offered for push: %+v", dirty)
	}
	if err := s.Update(models.EntityProducts, rec.ExternalID, models.ProductPayload{Name: "Widget v2"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	dirty, _ = s.ListDirty("biz1")
	if len(dirty) != 1 {
		t.Errorf("edited record not offered for push: %+v", dirty)
	}
}

func TestApplyPullInsertsCleanRows(t *testing.T) {
	s := testStore(t)

	payload, _ := json.Marshal(clientPayload("Remote"))
	updates := map[string][]models.Record{
		models.EntityClients: {{ExternalID: "ext-1", Payload: payload, UpdatedAt: 1000}},
	}
	res, err := s.ApplyPull("biz1", updates, 1500)
	if err != nil {
		t.Fatalf("apply pull: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if res.Watermark != 1000 {
		t.Errorf("watermark = %d, want 1000", res.Watermark)
	}

	got, _ := s.Get(models.EntityClients, "ext-1")
	if got == nil || got.Dirty {
		t.Fatalf("pulled record should exist and be clean, got %+v", got)
	}

	wm, err := s.LastPulledAt("biz1")
	if err != nil {
		t.Fatalf("last pulled at: %v", err)
	}
	if wm != 1000 {
		t.Errorf("last_pulled_at = %d, want 1000", wm)
	}
}

func TestApplyPullDirtyLocalWins(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Local Edit"))

	remote, _ := json.Marshal(clientPayload("Server Version"))
	updates := map[string][]models.Record{
		models.EntityClients: {{ExternalID: rec.ExternalID, Payload: remote, UpdatedAt: rec.UpdatedAt + 5000}},
	}
	res, err := s.ApplyPull("biz1", updates, rec.UpdatedAt+5000)
	if err != nil {
		t.Fatalf("apply pull: %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}

	got, _ := s.Get(models.EntityClients, rec.ExternalID)
	var payload models.ClientPayload
	json.Unmarshal(got.Payload, &payload)
	if payload.Name != "Local Edit" {
		t.Errorf("dirty local record was overwritten by pull: %q", payload.Name)
	}
	if !got.Dirty {
		t.Error("dirty record must stay dirty after skipped pull")
	}
}

func TestApplyPullOverwritesCleanRows(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Old"))
	s.MarkSynced(models.EntityClients, []Ack{{rec.ExternalID, rec.UpdatedAt}})

	remote, _ := json.Marshal(clientPayload("New"))
	updates := map[string][]models.Record{
		models.EntityClients: {{ExternalID: rec.ExternalID, Payload: remote, UpdatedAt: rec.UpdatedAt + 1}},
	}
	if _, err := s.ApplyPull("biz1", updates, rec.UpdatedAt+1); err != nil {
		t.Fatalf("apply pull: %v", err)
	}

	got, _ := s.Get(models.EntityClients, rec.ExternalID)
	var payload models.ClientPayload
	json.Unmarshal(got.Payload, &payload)
	if payload.Name != "New" {
		t.Errorf("clean record should take server state, got %q", payload.Name)
	}
	if got.Dirty {
		t.Error("pulled record should be clean")
	}
}

func TestApplyPullRemoteTombstone(t *testing.T) {
	s := testStore(t)
	rec, _ := s.Create(models.EntityClients, "biz1", clientPayload("Gone"))
	s.MarkSynced(models.EntityClients, []Ack{{rec.ExternalID, rec.UpdatedAt}})

	updates := map[string][]models.Record{
		models.EntityClients: {
			{ExternalID: rec.ExternalID, UpdatedAt: rec.UpdatedAt + 1, Deleted: true},
			{ExternalID: "never-seen", UpdatedAt: rec.UpdatedAt + 2, Deleted: true},
		},
	}
	res, err := s.ApplyPull("biz1", updates, rec.UpdatedAt+2)
	if err != nil {
		t.Fatalf("apply pull: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", res.Deleted)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 for unknown tombstone", res.Skipped)
	}

	got, _ := s.Get(models.EntityClients, rec.ExternalID)
	if got != nil {
		t.Error("remote tombstone on clean row should remove it physically")
	}
}

func TestApplyPullWatermarkMonotonic(t *testing.T) {
	s := testStore(t)

	payload, _ := json.Marshal(clientPayload("A"))
	first := map[string][]models.Record{
		models.EntityClients: {{ExternalID: "a", Payload: payload, UpdatedAt: 2000}},
	}
	if _, err := s.ApplyPull("biz1", first, 2000); err != nil {
		t.Fatalf("apply pull: %v", err)
	}

	// An empty page carries only the server timestamp; it must not
	// rewind an already advanced watermark.
	if _, err := s.ApplyPull("biz1", nil, 1500); err != nil {
		t.Fatalf("apply empty pull: %v", err)
	}
	wm, _ := s.LastPulledAt("biz1")
	if wm != 2000 {
		t.Errorf("watermark = %d, want 2000", wm)
	}
}

func TestApplyPullEmptyPageKeepsZeroWatermark(t *testing.T) {
	s := testStore(t)

	// A record could commit on the server between its query and its
	// timestamp stamp, so the server clock must never become the
	// watermark. A first pull that returns nothing leaves it at zero.
	res, err := s.ApplyPull("biz1", nil, 9000)
	if err != nil {
		t.Fatalf("apply empty pull: %v", err)
	}
	if res.Watermark != 0 {
		t.Errorf("result watermark = %d, want 0", res.Watermark)
	}
	wm, err := s.LastPulledAt("biz1")
	if err != nil {
		t.Fatalf("last pulled at: %v", err)
	}
	if wm != 0 {
		t.Errorf("last_pulled_at = %d, want 0", wm)
	}
}

func TestDirtyCountAcrossEntities(t *testing.T) {
	s := testStore(t)
	s.Create(models.EntityClients, "biz1", clientPayload("A"))
	s.Create(models.EntityProducts, "biz1", models.ProductPayload{Name: "W"})
	s.Create(models.EntityClients, "biz2", clientPayload("other tenant"))

	n, err := s.DirtyCount("biz1")
	if err != nil {
		t.Fatalf("dirty count: %v", err)
	}
	if n != 2 {
		t.Errorf("dirty count = %d, want 2", n)
	}
}

func TestAdoptBusinessRehomesRecords(t *testing.T) {
	s := testStore(t)
	s.Create(models.EntityClients, "local", clientPayload("offline client"))
	s.Create(models.EntityProducts, "local", models.ProductPayload{Name: "offline product"})
	s.Create(models.EntityClients, "biz1", clientPayload("already homed"))

	moved, err := s.AdoptBusiness("local", "biz1")
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}

	clients, err := s.Query(models.EntityClients, "biz1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("biz1 clients = %d, want 2", len(clients))
	}
	orphans, _ := s.Query(models.EntityClients, "local")
	if len(orphans) != 0 {
		t.Errorf("local scope still has %d clients", len(orphans))
	}

	// No-op cases.
	if n, err := s.AdoptBusiness("biz1", "biz1"); err != nil || n != 0 {
		t.Errorf("same-scope adopt = %d, %v", n, err)
	}
}

func TestCreateTxRollbackLeavesNoRecord(t *testing.T) {
	s := testStore(t)

	tx, err := s.Conn().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err := s.CreateTx(tx, models.EntityClients, "biz1", clientPayload("discarded"))
	if err != nil {
		t.Fatalf("create in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, err := s.Get(models.EntityClients, rec.ExternalID)
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if got != nil {
		t.Error("record visible after rollback")
	}

	tx, err = s.Conn().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err = s.CreateTx(tx, models.EntityClients, "biz1", clientPayload("kept"))
	if err != nil {
		t.Fatalf("create in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err = s.Get(models.EntityClients, rec.ExternalID)
	if err != nil {
		t.Fatalf("get after commit: %v", err)
	}
	if got == nil {
		t.Fatal("record missing after commit")
	}
	if !got.Dirty {
		t.Error("committed record is not dirty")
	}
}
