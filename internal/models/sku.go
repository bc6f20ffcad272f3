package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SKUStatus string

const (
	SKUStatusActive       SKUStatus = "active"
	SKUStatusDiscontinued SKUStatus = "discontinued"
)

// BundleItem is one component of a bundle SKU
type BundleItem struct {
	SkuID    uuid.UUID `json:"sku_id"`
	Quantity int       `json:"quantity"`
}

// SKU is a catalog entry. Physical units of a SKU are tracked as instances.
type SKU struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Code        string          `json:"code" db:"code"`
	Name        string          `json:"name" db:"name"`
	CategoryID  uuid.UUID       `json:"category_id" db:"category_id"`
	UnitCost    decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	IsBundle    bool            `json:"is_bundle" db:"is_bundle"`
	BundleItems []BundleItem    `json:"bundle_items,omitempty" db:"bundle_items"`
	IsLendable  bool            `json:"is_lendable" db:"is_lendable"`
	Status      SKUStatus       `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func (s *SKU) IsActive() bool {
	return s.Status == SKUStatusActive
}
