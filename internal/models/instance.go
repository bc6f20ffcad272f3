package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition is the physical state of an instance. It is never stored; it is
// derived from the purpose of the tag that owns the instance.
type Condition string

const (
	ConditionFunctional       Condition = "functional"
	ConditionNeedsMaintenance Condition = "needs_maintenance"
	ConditionBroken           Condition = "broken"
)

func (c Condition) IsValid() bool {
	switch c {
	case ConditionFunctional, ConditionNeedsMaintenance, ConditionBroken:
		return true
	}
	return false
}

func ParseCondition(s string) (Condition, error) {
	c := Condition(s)
	if !c.IsValid() {
		return "", fmt.Errorf("condition must be one of: functional, needs_maintenance, broken")
	}
	return c, nil
}

// Instance is one physical, individually tracked unit of a SKU.
// TagID is nil while the unit is available.
type Instance struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	SkuID           uuid.UUID       `json:"sku_id" db:"sku_id"`
	AcquisitionDate time.Time       `json:"acquisition_date" db:"acquisition_date"`
	AcquisitionCost decimal.Decimal `json:"acquisition_cost" db:"acquisition_cost"`
	Location        *string         `json:"location,omitempty" db:"location"`
	Supplier        *string         `json:"supplier,omitempty" db:"supplier"`
	Reference       *string         `json:"reference,omitempty" db:"reference"`
	Notes           *string         `json:"notes,omitempty" db:"notes"`
	TagID           *uuid.UUID      `json:"tag_id" db:"tag_id"`
	Version         int             `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	Condition       Condition       `json:"condition,omitempty" db:"-"`
}

func (i *Instance) IsAvailable() bool {
	return i.TagID == nil
}

// InstanceReceipt carries the acquisition details for newly received stock
type InstanceReceipt struct {
	AcquisitionDate time.Time       `json:"acquisition_date"`
	AcquisitionCost decimal.Decimal `json:"acquisition_cost"`
	Location        *string         `json:"location,omitempty"`
	Supplier        *string         `json:"supplier,omitempty"`
	Reference       *string         `json:"reference,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

// InstanceOwnership is one instance joined with its owning tag, if any.
type InstanceOwnership struct {
	InstanceID      uuid.UUID       `db:"instance_id"`
	SkuID           uuid.UUID       `db:"sku_id"`
	AcquisitionCost decimal.Decimal `db:"acquisition_cost"`
	TagID           *uuid.UUID      `db:"tag_id"`
	TagType         *TagType        `db:"tag_type"`
	TagStatus       *TagStatus      `db:"tag_status"`
}

// InstanceRef identifies an instance together with its SKU
type InstanceRef struct {
	ID    uuid.UUID `json:"id"`
	SkuID uuid.UUID `json:"sku_id"`
}
