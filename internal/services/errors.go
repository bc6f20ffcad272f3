package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrDomainMismatch = errors.New("sku category does not match the allocation domain")
	ErrNotLendable    = errors.New("sku is not lendable")
	ErrSKUInactive    = errors.New("sku is discontinued")
)

// InsufficientStockError reports a shortfall for one SKU. Nothing is bound
// when it is returned.
type InsufficientStockError struct {
	SkuID     uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s: requested %d, available %d", e.SkuID, e.Requested, e.Available)
}

// Shortfall is the number of units missing
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

type InvalidBundleError struct {
	SkuID  uuid.UUID
	Reason string
}

func (e *InvalidBundleError) Error() string {
	return fmt.Sprintf("invalid bundle %s: %s", e.SkuID, e.Reason)
}

// InvalidStateError is returned when an operation is not allowed from the
// entity's current state
type InvalidStateError struct {
	EntityID  uuid.UUID
	Operation string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Operation, e.EntityID, e.State)
}

// InvalidSelectionError is returned when a caller names instances that are
// not bound where the caller says they are
type InvalidSelectionError struct {
	InstanceID uuid.UUID
	Reason     string
}

func (e *InvalidSelectionError) Error() string {
	if e.InstanceID == uuid.Nil {
		return "invalid selection: " + e.Reason
	}
	return fmt.Sprintf("invalid selection of instance %s: %s", e.InstanceID, e.Reason)
}

// BindConflictError means another writer claimed the instance between
// selection and binding. The engine retries with the next candidate.
type BindConflictError struct {
	InstanceID uuid.UUID
}

func (e *BindConflictError) Error() string {
	return fmt.Sprintf("instance %s was claimed concurrently", e.InstanceID)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
