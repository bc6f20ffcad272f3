package jobs

import (
	"context"
	"log"

	"stockroom/internal/repositories"
	"stockroom/internal/services"

	"github.com/google/uuid"
)

const defaultLowStockThreshold = 2

type InventoryAlertService struct {
	store        repositories.Store
	availability services.AvailabilityService
}

type InventoryAlert struct {
	SkuID     uuid.UUID
	SkuCode   string
	Available int
	Total     int
	Threshold int
}

func NewInventoryAlertService(store repositories.Store, availability services.AvailabilityService) *InventoryAlertService {
	return &InventoryAlertService{
		store:        store,
		availability: availability,
	}
}

// CheckLowStock reports every active, stocked SKU whose available count is at
// or below threshold. Bundles are not stocked and never alert.
func (a *InventoryAlertService) CheckLowStock(ctx context.Context, threshold int) ([]InventoryAlert, error) {
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}

	var alerts []InventoryAlert
	err := a.store.InTx(ctx, func(tx repositories.Tx) error {
		skuIDs, err := tx.Instances().ListSKUIDs(ctx)
		if err != nil {
			log.Printf("Failed to list stocked skus: %v", err)
			return err
		}

		for _, skuID := range skuIDs {
			sku, err := tx.Catalog().GetSKU(ctx, skuID)
			if err != nil {
				log.Printf("Failed to get sku %s: %v", skuID.String(), err)
				continue
			}
			if !sku.IsActive() {
				continue
			}

			availability, err := a.availability.Compute(ctx, tx, skuID)
			if err != nil {
				log.Printf("Failed to compute availability for sku %s: %v", skuID.String(), err)
				continue
			}

			if availability.Available <= threshold {
				alerts = append(alerts, InventoryAlert{
					SkuID:     skuID,
					SkuCode:   sku.Code,
					Available: availability.Available,
					Total:     availability.Total,
					Threshold: threshold,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

func (a *InventoryAlertService) LogLowStockAlerts(ctx context.Context, alerts []InventoryAlert) {
	if len(alerts) == 0 {
		log.Println("No low stock alerts to log")
		return
	}

	log.Printf("Low stock alerts (%d skus):", len(alerts))
	for _, alert := range alerts {
		log.Printf("- SKU '%s' has %d of %d units available (threshold: %d)",
			alert.SkuCode,
			alert.Available,
			alert.Total,
			alert.Threshold)
	}
}

// ScheduledLowStockCheck is the entry point of the low-stock-alerts job
func (a *InventoryAlertService) ScheduledLowStockCheck(ctx context.Context, threshold int) ([]InventoryAlert, error) {
	log.Println("Starting scheduled low stock check")

	alerts, err := a.CheckLowStock(ctx, threshold)
	if err != nil {
		log.Printf("Scheduled low stock check failed: %v", err)
		return nil, err
	}
	a.LogLowStockAlerts(ctx, alerts)

	log.Println("Scheduled low stock check completed successfully")
	return alerts, nil
}
