package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Availability is derived from instance ownership every time it is read
type Availability struct {
	SkuID     uuid.UUID `json:"sku_id"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Broken    int       `json:"broken"`
	Loaned    int       `json:"loaned"`
	Buildable *int      `json:"buildable,omitempty"` // bundles only
}

// InventorySummary is the cached per-SKU view. It can always be rebuilt from
// instance and tag state.
type InventorySummary struct {
	Availability
	TotalValue  decimal.Decimal `json:"total_value"`
	AverageCost decimal.Decimal `json:"average_cost"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}
