package models

// InventoryConfig holds a client's per-inventory preferences. The reference
// data kept this as a free-form JSON blob; here it is an explicit struct
// validated at the store boundary.
type InventoryConfig struct {
	CountByBarcode bool    `json:"countByBarcode,omitempty"`
	AllowZeroCost  bool    `json:"allowZeroCost,omitempty"`
	DefaultUnit    string  `json:"defaultUnit,omitempty"`
	TargetMargin   float64 `json:"targetMargin,omitempty"`
}

// ClientPayload is the domain body of a business client record.
type ClientPayload struct {
	Name    string          `json:"name"`
	Phone   string          `json:"phone,omitempty"`
	Address string          `json:"address,omitempty"`
	Notes   string          `json:"notes,omitempty"`
	Config  InventoryConfig `json:"config,omitempty"`
}

// ProductPayload is the domain body of a product record.
type ProductPayload struct {
	Name        string  `json:"name"`
	Barcode     string  `json:"barcode,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Cost        float64 `json:"cost"`
	SalePrice   float64 `json:"salePrice"`
	Stock       float64 `json:"stock"`
	Category    string  `json:"category,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
}

// SessionTotals aggregates a counting session.
type SessionTotals struct {
	ProductsCounted int     `json:"productsCounted"`
	TotalValue      float64 `json:"totalValue"`
}

// SessionFinancials carries the accounting summary computed for a session.
type SessionFinancials struct {
	InventoryValue float64 `json:"inventoryValue"`
	EstimatedCost  float64 `json:"estimatedCost"`
}

// SessionPayload is the domain body of an inventory counting session.
type SessionPayload struct {
	ClientExternalID string            `json:"clientExternalId,omitempty"`
	Number           string            `json:"number,omitempty"` // assigned by the server on first sync
	Date             string            `json:"date,omitempty"`   // RFC3339
	State            SessionState      `json:"state,omitempty"`
	Config           InventoryConfig   `json:"config,omitempty"`
	Totals           SessionTotals     `json:"totals,omitempty"`
	Financials       SessionFinancials `json:"financials,omitempty"`
}

// CountedItemPayload is the domain body of a single counted product within a
// session. Product fields are denormalized so the row is self-contained even
// when the product was created offline on another device.
type CountedItemPayload struct {
	SessionExternalID string  `json:"sessionExternalId"`
	ProductExternalID string  `json:"productExternalId,omitempty"`
	ProductName       string  `json:"productName,omitempty"`
	Unit              string  `json:"unit,omitempty"`
	SKU               string  `json:"sku,omitempty"`
	Cost              float64 `json:"cost"`
	Quantity          float64 `json:"quantity"`
	TotalValue        float64 `json:"totalValue"`
	Notes             string  `json:"notes,omitempty"`
}
