package services

import (
	"context"
	"errors"
	"fmt"

	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
)

// Requirement is a quantity of one non-bundle SKU. BundleSkuID is set when
// the requirement came from expanding a bundle.
type Requirement struct {
	SkuID       uuid.UUID
	Quantity    int
	BundleSkuID *uuid.UUID
}

type BundleExpander interface {
	// Expand turns a requested quantity of a SKU into component requirements.
	// Bundles expand one level; components must not be bundles themselves.
	Expand(ctx context.Context, catalog repositories.CatalogRepository, sku *models.SKU, quantity int) ([]Requirement, error)
}

type bundleExpander struct{}

func NewBundleExpander() BundleExpander {
	return &bundleExpander{}
}

func (e *bundleExpander) Expand(ctx context.Context, catalog repositories.CatalogRepository, sku *models.SKU, quantity int) ([]Requirement, error) {
	if quantity <= 0 {
		return nil, validationErr("quantity", "must be positive")
	}
	if !sku.IsBundle {
		return []Requirement{{SkuID: sku.ID, Quantity: quantity}}, nil
	}
	if len(sku.BundleItems) == 0 {
		return nil, &InvalidBundleError{SkuID: sku.ID, Reason: "bundle has no components"}
	}

	bundleID := sku.ID
	reqs := make([]Requirement, 0, len(sku.BundleItems))
	for _, item := range sku.BundleItems {
		if item.Quantity <= 0 {
			return nil, &InvalidBundleError{SkuID: sku.ID, Reason: fmt.Sprintf("component %s has non-positive quantity", item.SkuID)}
		}
		component, err := catalog.GetSKU(ctx, item.SkuID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, &InvalidBundleError{SkuID: sku.ID, Reason: fmt.Sprintf("component %s does not exist", item.SkuID)}
			}
			return nil, fmt.Errorf("failed to load bundle component: %w", err)
		}
		if component.IsBundle {
			return nil, &InvalidBundleError{SkuID: sku.ID, Reason: fmt.Sprintf("component %s is itself a bundle", item.SkuID)}
		}
		reqs = append(reqs, Requirement{
			SkuID:       component.ID,
			Quantity:    item.Quantity * quantity,
			BundleSkuID: &bundleID,
		})
	}
	return reqs, nil
}
