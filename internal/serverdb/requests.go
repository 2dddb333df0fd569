package serverdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvega/inventa/internal/models"
)

// Connection request statuses.
const (
	RequestOpen      = "open"
	RequestFulfilled = "fulfilled"
	RequestCancelled = "cancelled"
)

// ConnectionRequest lets a business receive counted items from a device it
// does not own. The device delivers against the request ID instead of the
// business's own sync channel.
type ConnectionRequest struct {
	ID          string
	BusinessID  string
	Status      string
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

// CreateConnectionRequest opens a request for the given business.
func (db *ServerDB) CreateConnectionRequest(businessID string) (*ConnectionRequest, error) {
	b, err := db.GetBusiness(businessID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("business not found: %s", businessID)
	}

	id, err := generateID("req_")
	if err != nil {
		return nil, fmt.Errorf("generate request id: %w", err)
	}
	now := db.now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO connection_requests (id, business_id, status, created_at) VALUES (?, ?, 'open', ?)`,
		id, businessID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert connection request: %w", err)
	}
	return &ConnectionRequest{ID: id, BusinessID: businessID, Status: RequestOpen, CreatedAt: now}, nil
}

// GetConnectionRequest looks up a request by ID, nil when absent.
func (db *ServerDB) GetConnectionRequest(id string) (*ConnectionRequest, error) {
	r := &ConnectionRequest{}
	err := db.conn.QueryRow(
		`SELECT id, business_id, status, created_at, fulfilled_at FROM connection_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.BusinessID, &r.Status, &r.CreatedAt, &r.FulfilledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection request: %w", err)
	}
	return r, nil
}

// DeliverItems ingests counted items against a connection request. The items
// land in the issuing business's store and an open request is marked
// fulfilled. Delivery reuses the batch path, so invalid items are counted but
// not stored, and a redelivery of the same items acks as a no-op. Fulfilled
// requests therefore still accept deliveries: the acknowledgment of a
// successful delivery can be lost in transit, and the retry must not fail.
func (db *ServerDB) DeliverItems(requestID string, items []models.Record) (int, error) {
	req, err := db.GetConnectionRequest(requestID)
	if err != nil {
		return 0, err
	}
	if req == nil {
		return 0, fmt.Errorf("connection request not found: %s", requestID)
	}
	if req.Status == RequestCancelled {
		return 0, fmt.Errorf("connection request %s is cancelled", requestID)
	}

	results, _, err := db.ApplyBatch(req.BusinessID, "", map[string][]models.Record{
		models.EntityCountedItems: items,
	})
	if err != nil {
		return 0, err
	}

	accepted := len(results[models.EntityCountedItems].Applied)
	if accepted > 0 && req.Status == RequestOpen {
		_, err = db.conn.Exec(
			`UPDATE connection_requests SET status = 'fulfilled', fulfilled_at = ? WHERE id = ?`,
			db.now().UTC(), requestID,
		)
		if err != nil {
			return accepted, fmt.Errorf("mark request fulfilled: %w", err)
		}
	}
	return accepted, nil
}
