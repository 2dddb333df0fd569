package cmd

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/jvega/inventa/internal/models"
	"github.com/jvega/inventa/internal/store"
)

const testBusiness = "biz_test"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.NewFromDB(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return st
}

func TestResolveRecordByPrefix(t *testing.T) {
	st := newTestStore(t)

	rec, err := st.Create(models.EntityClients, testBusiness, models.ClientPayload{Name: "Bodega Sol"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := resolveRecord(st, models.EntityClients, testBusiness, rec.ExternalID[:8])
	if err != nil {
		t.Fatalf("resolve by prefix: %v", err)
	}
	if got.ExternalID != rec.ExternalID {
		t.Errorf("resolved %s, want %s", got.ExternalID, rec.ExternalID)
	}

	if _, err := resolveRecord(st, models.EntityClients, testBusiness, "zzzzzzzz"); err == nil {
		t.Error("expected error for unknown reference")
	}
}

func TestResolveRecordAmbiguousPrefix(t *testing.T) {
	st := newTestStore(t)

	// Empty prefix matches every record.
	for _, name := range []string{"A", "B"} {
		if _, err := st.Create(models.EntityClients, testBusiness, models.ClientPayload{Name: name}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := resolveRecord(st, models.EntityClients, testBusiness, ""); err == nil {
		t.Error("expected ambiguity error")
	}
}

func TestFindProductByBarcodeAndName(t *testing.T) {
	st := newTestStore(t)

	rec, err := st.Create(models.EntityProducts, testBusiness, models.ProductPayload{
		Name:    "Arroz 1kg",
		Barcode: "7501000111111",
		SKU:     "ARR-1",
		Cost:    1.2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, ref := range []string{"7501000111111", "ARR-1", "arroz 1kg"} {
		got, payload, err := findProduct(st, testBusiness, ref)
		if err != nil {
			t.Fatalf("findProduct(%q): %v", ref, err)
		}
		if got.ExternalID != rec.ExternalID {
			t.Errorf("findProduct(%q) resolved %s, want %s", ref, got.ExternalID, rec.ExternalID)
		}
		if payload.Name != "Arroz 1kg" {
			t.Errorf("findProduct(%q) payload name = %q", ref, payload.Name)
		}
	}

	if _, _, err := findProduct(st, testBusiness, "no-such-product"); err == nil {
		t.Error("expected error for unknown product")
	}
}

func TestSessionItemsFilterBySession(t *testing.T) {
	st := newTestStore(t)

	sessA, err := st.Create(models.EntitySessions, testBusiness, models.SessionPayload{State: models.SessionInProgress})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sessB, err := st.Create(models.EntitySessions, testBusiness, models.SessionPayload{State: models.SessionInProgress})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for i, sessID := range []string{sessA.ExternalID, sessA.ExternalID, sessB.ExternalID} {
		_, err := st.Create(models.EntityCountedItems, testBusiness, models.CountedItemPayload{
			SessionExternalID: sessID,
			ProductName:       "P",
			Quantity:          float64(i + 1),
		})
		if err != nil {
			t.Fatalf("create item: %v", err)
		}
	}

	items, err := sessionItems(st, testBusiness, sessA.ExternalID)
	if err != nil {
		t.Fatalf("sessionItems: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items for session A, want 2", len(items))
	}
}

func TestSingular(t *testing.T) {
	if got := singular(models.EntityCountedItems); got != "counted item" {
		t.Errorf("singular = %q", got)
	}
	if got := singular("widgets"); got != "widgets" {
		t.Errorf("unknown type should pass through, got %q", got)
	}
}
