package models

import (
	"encoding/json"
	"fmt"
)

// SyncStatus is the UI-facing projection of a record's sync state.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// SessionState represents the lifecycle state of a counting session.
type SessionState string

const (
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
	SessionCancelled  SessionState = "cancelled"
)

// Entity type names as they appear on the wire and as table names.
const (
	EntityClients      = "clients"
	EntityProducts     = "products"
	EntitySessions     = "sessions"
	EntityCountedItems = "counted_items"
)

// EntityTypes lists every synchronized entity type in a stable order.
// Counted items sort last so that pulled sessions exist before their items.
var EntityTypes = []string{EntityClients, EntityProducts, EntitySessions, EntityCountedItems}

var knownEntityTypes = map[string]bool{
	EntityClients:      true,
	EntityProducts:     true,
	EntitySessions:     true,
	EntityCountedItems: true,
}

// IsEntityType reports whether t is a synchronized entity type.
func IsEntityType(t string) bool {
	return knownEntityTypes[t]
}

// Record is a synchronized row: sync metadata plus the typed domain payload
// serialized as JSON. The same shape is used in the local store, on the wire,
// and in the server store; Dirty and Status are local-only and never sent.
type Record struct {
	ExternalID string          `json:"externalId"`
	BusinessID string          `json:"businessId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  int64           `json:"updatedAt"` // epoch ms
	Deleted    bool            `json:"deleted,omitempty"`

	Dirty  bool       `json:"-"`
	Status SyncStatus `json:"-"`
}

// DecodePayload validates and decodes a raw payload for the given entity type.
// It is the single boundary where free-form JSON becomes a typed struct.
func DecodePayload(entityType string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	switch entityType {
	case EntityClients:
		var p ClientPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, fmt.Errorf("client name is required")
		}
		return p, nil
	case EntityProducts:
		var p ProductPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.Name == "" {
			return nil, fmt.Errorf("product name is required")
		}
		if p.Cost < 0 || p.SalePrice < 0 {
			return nil, fmt.Errorf("negative price")
		}
		return p, nil
	case EntitySessions:
		var p SessionPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		switch p.State {
		case "", SessionInProgress, SessionCompleted, SessionCancelled:
		default:
			return nil, fmt.Errorf("invalid session state %q", p.State)
		}
		return p, nil
	case EntityCountedItems:
		var p CountedItemPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.SessionExternalID == "" {
			return nil, fmt.Errorf("counted item requires a session")
		}
		if p.Quantity < 0 {
			return nil, fmt.Errorf("negative quantity")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
