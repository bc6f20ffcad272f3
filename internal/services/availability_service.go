package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stockroom/internal/caching"
	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AvailabilityService interface {
	// Compute derives availability from instance ownership inside tx.
	// No stored counter is consulted.
	Compute(ctx context.Context, tx repositories.Tx, skuID uuid.UUID) (*models.Availability, error)

	GetAvailability(ctx context.Context, skuID uuid.UUID) (*models.Availability, error)

	// GetSummary serves from the cache when it can and rebuilds on a miss
	GetSummary(ctx context.Context, skuID uuid.UUID) (*models.InventorySummary, error)

	// RefreshSummaries recomputes and caches the given SKUs. Failures are logged.
	RefreshSummaries(ctx context.Context, skuIDs []uuid.UUID)

	// ReconcileAll rebuilds the cached summary of every stocked SKU and bundle
	ReconcileAll(ctx context.Context) (int, error)
}

type availabilityService struct {
	store   repositories.Store
	cache   caching.SummaryCache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewAvailabilityService creates the calculator. cache may be nil.
func NewAvailabilityService(store repositories.Store, cache caching.SummaryCache, ttl time.Duration, m *metrics.Metrics) AvailabilityService {
	return &availabilityService{store: store, cache: cache, ttl: ttl, metrics: m}
}

func (s *availabilityService) Compute(ctx context.Context, tx repositories.Tx, skuID uuid.UUID) (*models.Availability, error) {
	sku, err := tx.Catalog().GetSKU(ctx, skuID)
	if err != nil {
		return nil, err
	}
	if sku.IsBundle {
		return s.bundleAvailability(ctx, tx, sku)
	}
	avail, _, err := countOwnership(ctx, tx, skuID)
	return avail, err
}

// countOwnership buckets every instance of a SKU by the type of its owner
func countOwnership(ctx context.Context, tx repositories.Tx, skuID uuid.UUID) (*models.Availability, decimal.Decimal, error) {
	rows, err := tx.Instances().ListOwnership(ctx, skuID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to read ownership: %w", err)
	}

	avail := &models.Availability{SkuID: skuID}
	value := decimal.Zero
	for _, row := range rows {
		avail.Total++
		value = value.Add(row.AcquisitionCost)

		if row.TagID == nil {
			avail.Available++
			continue
		}
		if row.TagType == nil {
			log.Printf("WARN: instance %s references missing tag %s", row.InstanceID, *row.TagID)
			avail.Reserved++
			continue
		}
		if row.TagStatus != nil && *row.TagStatus != models.TagStatusActive {
			log.Printf("WARN: instance %s still owned by %s tag %s", row.InstanceID, *row.TagStatus, *row.TagID)
		}
		switch *row.TagType {
		case models.TagTypeBroken, models.TagTypeImperfect:
			avail.Broken++
		case models.TagTypeLoaned:
			avail.Loaned++
		default:
			avail.Reserved++
		}
	}
	return avail, value, nil
}

func (s *availabilityService) bundleAvailability(ctx context.Context, tx repositories.Tx, sku *models.SKU) (*models.Availability, error) {
	avail := &models.Availability{SkuID: sku.ID}
	buildable := -1
	for _, item := range sku.BundleItems {
		if item.Quantity <= 0 {
			return nil, &InvalidBundleError{SkuID: sku.ID, Reason: fmt.Sprintf("component %s has non-positive quantity", item.SkuID)}
		}
		component, _, err := countOwnership(ctx, tx, item.SkuID)
		if err != nil {
			return nil, err
		}
		n := component.Available / item.Quantity
		if buildable < 0 || n < buildable {
			buildable = n
		}
	}
	if buildable < 0 {
		buildable = 0
	}
	avail.Buildable = &buildable
	return avail, nil
}

func (s *availabilityService) GetAvailability(ctx context.Context, skuID uuid.UUID) (*models.Availability, error) {
	var avail *models.Availability
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		avail, err = s.Compute(ctx, tx, skuID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return avail, nil
}

func (s *availabilityService) summarize(ctx context.Context, tx repositories.Tx, skuID uuid.UUID) (*models.InventorySummary, error) {
	sku, err := tx.Catalog().GetSKU(ctx, skuID)
	if err != nil {
		return nil, err
	}
	summary := &models.InventorySummary{RefreshedAt: time.Now().UTC()}
	if sku.IsBundle {
		avail, err := s.bundleAvailability(ctx, tx, sku)
		if err != nil {
			return nil, err
		}
		summary.Availability = *avail
		return summary, nil
	}

	avail, value, err := countOwnership(ctx, tx, skuID)
	if err != nil {
		return nil, err
	}
	summary.Availability = *avail
	summary.TotalValue = value
	if avail.Total > 0 {
		summary.AverageCost = value.Div(decimal.NewFromInt(int64(avail.Total))).Round(4)
	}
	return summary, nil
}

func (s *availabilityService) GetSummary(ctx context.Context, skuID uuid.UUID) (*models.InventorySummary, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSummary(ctx, skuID)
		switch {
		case err != nil:
			log.Printf("Failed to read summary cache for sku %s: %v", skuID, err)
			s.metrics.CacheLookup(metrics.CacheError)
		case cached != nil:
			s.metrics.CacheLookup(metrics.CacheHit)
			return cached, nil
		default:
			s.metrics.CacheLookup(metrics.CacheMiss)
		}
	}

	var summary *models.InventorySummary
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		summary, err = s.summarize(ctx, tx, skuID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cacheSummary(ctx, summary)
	return summary, nil
}

func (s *availabilityService) cacheSummary(ctx context.Context, summary *models.InventorySummary) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSummary(ctx, summary, s.ttl); err != nil {
		log.Printf("Failed to cache summary for sku %s: %v", summary.SkuID, err)
	}
}

func (s *availabilityService) RefreshSummaries(ctx context.Context, skuIDs []uuid.UUID) {
	if s.cache == nil || len(skuIDs) == 0 {
		return
	}
	summaries, err := s.summarizeAll(ctx, skuIDs)
	if err != nil {
		log.Printf("Failed to refresh inventory summaries: %v", err)
		return
	}
	for _, summary := range summaries {
		s.cacheSummary(ctx, summary)
	}
}

// summarizeAll reads every summary from one transaction so they agree with
// each other. Bundles containing a requested SKU are summarized with it; a nil
// list means every stocked SKU plus every bundle.
func (s *availabilityService) summarizeAll(ctx context.Context, skuIDs []uuid.UUID) ([]*models.InventorySummary, error) {
	var summaries []*models.InventorySummary
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		bundles, err := tx.Catalog().ListBundles(ctx)
		if err != nil {
			return err
		}

		var ids []uuid.UUID
		if skuIDs == nil {
			stocked, err := tx.Instances().ListSKUIDs(ctx)
			if err != nil {
				return err
			}
			ids = append(ids, stocked...)
			for _, bundle := range bundles {
				ids = append(ids, bundle.ID)
			}
		} else {
			ids = append(ids, skuIDs...)
			ids = append(ids, bundlesContaining(bundles, skuIDs)...)
		}

		for _, id := range dedupeIDs(ids) {
			summary, err := s.summarize(ctx, tx, id)
			var bundleErr *InvalidBundleError
			if errors.As(err, &bundleErr) {
				log.Printf("WARN: skipping summary of malformed bundle %s: %v", id, err)
				continue
			}
			if err != nil {
				return fmt.Errorf("sku %s: %w", id, err)
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	return summaries, err
}

// bundlesContaining returns the bundles with at least one of the SKUs as a component
func bundlesContaining(bundles []models.SKU, skuIDs []uuid.UUID) []uuid.UUID {
	wanted := make(map[uuid.UUID]bool, len(skuIDs))
	for _, id := range skuIDs {
		wanted[id] = true
	}
	var out []uuid.UUID
	for _, bundle := range bundles {
		for _, item := range bundle.BundleItems {
			if wanted[item.SkuID] {
				out = append(out, bundle.ID)
				break
			}
		}
	}
	return out
}

func (s *availabilityService) ReconcileAll(ctx context.Context) (int, error) {
	summaries, err := s.summarizeAll(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile summaries: %w", err)
	}
	for _, summary := range summaries {
		s.cacheSummary(ctx, summary)
	}
	return len(summaries), nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
