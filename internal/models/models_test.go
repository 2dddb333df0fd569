package models

import (
	"encoding/json"
	"testing"
)

func TestDecodePayloadValidation(t *testing.T) {
	cases := []struct {
		name       string
		entityType string
		payload    string
		wantErr    bool
	}{
		{"valid client", EntityClients, `{"name":"Bodega Central"}`, false},
		{"client without name", EntityClients, `{"phone":"555-1234"}`, true},
		{"valid product", EntityProducts, `{"name":"Rice","cost":1.5,"salePrice":2}`, false},
		{"negative price", EntityProducts, `{"name":"Rice","cost":-1,"salePrice":2}`, true},
		{"valid session", EntitySessions, `{"state":"in_progress"}`, false},
		{"bad session state", EntitySessions, `{"state":"paused"}`, true},
		{"valid counted item", EntityCountedItems, `{"sessionExternalId":"s1","quantity":2}`, false},
		{"item without session", EntityCountedItems, `{"quantity":2}`, true},
		{"negative quantity", EntityCountedItems, `{"sessionExternalId":"s1","quantity":-1}`, true},
		{"empty payload", EntityClients, ``, true},
		{"unknown type", "warehouses", `{}`, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodePayload(c.entityType, json.RawMessage(c.payload))
			if (err != nil) != c.wantErr {
				t.Errorf("DecodePayload(%s, %s) err = %v, wantErr %v", c.entityType, c.payload, err, c.wantErr)
			}
		})
	}
}

func TestEntityTypeOrdering(t *testing.T) {
	// Sessions must sort before counted items so pulled items always find
	// their session.
	var sessionIdx, itemIdx int
	for i, et := range EntityTypes {
		switch et {
		case EntitySessions:
			sessionIdx = i
		case EntityCountedItems:
			itemIdx = i
		}
	}
	if sessionIdx >= itemIdx {
		t.Errorf("sessions at %d should precede counted_items at %d", sessionIdx, itemIdx)
	}
}

func TestIsEntityType(t *testing.T) {
	for _, et := range EntityTypes {
		if !IsEntityType(et) {
			t.Errorf("IsEntityType(%q) = false", et)
		}
	}
	if IsEntityType("issues") {
		t.Error("IsEntityType should reject unknown types")
	}
}
