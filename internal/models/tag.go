package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TagType drives how availability buckets an owned instance and what
// fulfillment does with it.
type TagType string

const (
	TagTypeReserved  TagType = "reserved"
	TagTypeBroken    TagType = "broken"
	TagTypeImperfect TagType = "imperfect"
	TagTypeLoaned    TagType = "loaned"
	TagTypeStock     TagType = "stock"
)

func (t TagType) IsValid() bool {
	switch t {
	case TagTypeReserved, TagTypeBroken, TagTypeImperfect, TagTypeLoaned, TagTypeStock:
		return true
	}
	return false
}

func ParseTagType(s string) (TagType, error) {
	t := TagType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("tag type must be one of: reserved, broken, imperfect, loaned, stock")
	}
	return t, nil
}

// IsLoan reports whether fulfilling the tag returns instances instead of consuming them
func (t TagType) IsLoan() bool {
	return t == TagTypeLoaned
}

// DefaultPurpose is the purpose of a tag created directly by an allocation
func (t TagType) DefaultPurpose() TagPurpose {
	switch t {
	case TagTypeLoaned:
		return TagPurposeLoan
	case TagTypeReserved:
		return TagPurposeReservation
	default:
		return TagPurposeConsumption
	}
}

type TagStatus string

const (
	TagStatusActive    TagStatus = "active"
	TagStatusFulfilled TagStatus = "fulfilled"
	TagStatusCancelled TagStatus = "cancelled"
)

// TagPurpose records why a tag exists. Maintenance and damage tags are only
// ever created by condition routing.
type TagPurpose string

const (
	TagPurposeReservation TagPurpose = "reservation"
	TagPurposeLoan        TagPurpose = "loan"
	TagPurposeConsumption TagPurpose = "consumption"
	TagPurposeMaintenance TagPurpose = "maintenance"
	TagPurposeDamage      TagPurpose = "damage"
)

// IsCondition reports whether the tag holds instances because of their condition
func (p TagPurpose) IsCondition() bool {
	return p == TagPurposeMaintenance || p == TagPurposeDamage
}

type SelectionMethod string

const (
	SelectionFIFO   SelectionMethod = "fifo"
	SelectionManual SelectionMethod = "manual"
)

// TagItem is one line of a tag. While the tag is active len(InstanceIDs) == Remaining.
type TagItem struct {
	ID              uuid.UUID       `json:"id"`
	SkuID           uuid.UUID       `json:"sku_id"`
	BundleSkuID     *uuid.UUID      `json:"bundle_sku_id,omitempty"`
	Quantity        int             `json:"quantity"`
	SelectionMethod SelectionMethod `json:"selection_method"`
	InstanceIDs     []uuid.UUID     `json:"instance_ids"`
	Remaining       int             `json:"remaining"`
	Notes           *string         `json:"notes,omitempty"`
}

// Tag is a named claim on a set of instances: a reservation, loan,
// consumption event or condition hold.
type Tag struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Counterparty string     `json:"counterparty" db:"counterparty"`
	Type         TagType    `json:"type" db:"type"`
	Purpose      TagPurpose `json:"purpose" db:"purpose"`
	Project      *string    `json:"project,omitempty" db:"project"`
	Status       TagStatus  `json:"status" db:"status"`
	DueDate      *time.Time `json:"due_date,omitempty" db:"due_date"`
	Items        []TagItem  `json:"items" db:"items"`
	SourceTagID  *uuid.UUID `json:"source_tag_id,omitempty" db:"source_tag_id"`
	CancelReason *string    `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	FulfilledBy  *string    `json:"fulfilled_by,omitempty" db:"fulfilled_by"`
	FulfilledAt  *time.Time `json:"fulfilled_at,omitempty" db:"fulfilled_at"`
	CancelledBy  *string    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	Version      int        `json:"version" db:"version"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

func (t *Tag) IsActive() bool {
	return t.Status == TagStatusActive
}

func (t *Tag) IsTerminal() bool {
	return t.Status == TagStatusFulfilled || t.Status == TagStatusCancelled
}

// TotalRemaining sums the remaining quantity across all lines
func (t *Tag) TotalRemaining() int {
	total := 0
	for _, item := range t.Items {
		total += item.Remaining
	}
	return total
}

// BoundInstanceIDs returns every instance the tag currently holds
func (t *Tag) BoundInstanceIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, item := range t.Items {
		ids = append(ids, item.InstanceIDs...)
	}
	return ids
}

// BoundInstances returns every held instance with the SKU of its line
func (t *Tag) BoundInstances() []InstanceRef {
	var refs []InstanceRef
	for _, item := range t.Items {
		for _, id := range item.InstanceIDs {
			refs = append(refs, InstanceRef{ID: id, SkuID: item.SkuID})
		}
	}
	return refs
}

// ItemIndex returns the position of the line with the given id, or -1
func (t *Tag) ItemIndex(itemID uuid.UUID) int {
	for i := range t.Items {
		if t.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// Condition derives the condition of the instances this tag holds
func (t *Tag) Condition() Condition {
	switch {
	case t.Purpose == TagPurposeMaintenance:
		return ConditionNeedsMaintenance
	case t.Purpose == TagPurposeDamage, t.Type == TagTypeBroken:
		return ConditionBroken
	}
	return ConditionFunctional
}

// ZeroItems releases every line of the tag while keeping the requested quantities
func (t *Tag) ZeroItems() {
	for i := range t.Items {
		t.Items[i].InstanceIDs = []uuid.UUID{}
		t.Items[i].Remaining = 0
	}
}

// Clone returns a deep copy of the tag
func (t *Tag) Clone() *Tag {
	c := *t
	c.Items = make([]TagItem, len(t.Items))
	for i, item := range t.Items {
		item.InstanceIDs = append([]uuid.UUID{}, item.InstanceIDs...)
		c.Items[i] = item
	}
	return &c
}

// DraftLine is one requested line of an allocation
type DraftLine struct {
	SkuID       uuid.UUID   `json:"sku_id"`
	Quantity    int         `json:"quantity"`
	InstanceIDs []uuid.UUID `json:"instance_ids,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
}

// TagDraft is an allocation request before any instance is bound
type TagDraft struct {
	Counterparty string        `json:"counterparty"`
	Type         TagType       `json:"type"`
	Project      *string       `json:"project,omitempty"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	Domain       *CategoryType `json:"domain,omitempty"`
	Lines        []DraftLine   `json:"lines"`
}

// ReturnSelection names a subset of the instances bound to one tag line
type ReturnSelection struct {
	ItemID      uuid.UUID   `json:"item_id"`
	InstanceIDs []uuid.UUID `json:"instance_ids"`
}

// TagFilter narrows tag listings
type TagFilter struct {
	Type      *TagType
	Purpose   *TagPurpose
	DueBefore *time.Time
}
