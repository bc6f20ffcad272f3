package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB represents a JSON object stored in a jsonb column
type JSONB map[string]interface{}

// AuditEvent records one state transition
type AuditEvent struct {
	ID          uuid.UUID `json:"id" db:"id"`
	EventType   string    `json:"event_type" db:"event_type"`
	EntityType  string    `json:"entity_type" db:"entity_type"`
	EntityID    uuid.UUID `json:"entity_id" db:"entity_id"`
	Actor       string    `json:"actor" db:"actor"`
	Description string    `json:"description" db:"description"`
	Metadata    JSONB     `json:"metadata" db:"metadata"`
	Severity    string    `json:"severity" db:"severity"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Event types
const (
	EventAllocationCreated   = "allocation.created"
	EventAllocationCancelled = "allocation.cancelled"
	EventAllocationFulfilled = "allocation.fulfilled"
	EventPartialReturn       = "allocation.partial_return"
	EventPartialFulfill      = "allocation.partial_fulfill"
	EventConditionChanged    = "instance.condition_changed"
	EventConditionRouted     = "instance.condition_routed"
	EventStockReceived       = "stock.received"
	EventStockDecreased      = "stock.decreased"
	EventLoanOverdue         = "loan.overdue"
)

// Entity types
const (
	EntityTag      = "tag"
	EntityInstance = "instance"
	EntitySKU      = "sku"
)

// Severity levels
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)
