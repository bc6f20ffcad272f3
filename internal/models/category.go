package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryType is the domain a category belongs to. Allocations can be
// restricted to a single domain.
type CategoryType string

const (
	CategoryTypeProduct CategoryType = "product"
	CategoryTypeTool    CategoryType = "tool"
)

func (t CategoryType) IsValid() bool {
	switch t {
	case CategoryTypeProduct, CategoryTypeTool:
		return true
	}
	return false
}

// ParseCategoryType validates a raw category type string
func ParseCategoryType(s string) (CategoryType, error) {
	t := CategoryType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("category type must be one of: product, tool")
	}
	return t, nil
}

type Category struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description" db:"description"`
	Type        CategoryType `json:"type" db:"type"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}
