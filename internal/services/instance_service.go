package services

import (
	"context"
	"fmt"

	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
)

// maxReceiptQuantity bounds a single stock receipt
const maxReceiptQuantity = 10000

type InstanceService interface {
	GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error)

	// Receive creates quantity new available instances of a non-bundle SKU
	Receive(ctx context.Context, skuID uuid.UUID, quantity int, receipt models.InstanceReceipt, actor string) ([]models.Instance, error)

	// Decrease deletes quantity available instances, newest acquisitions first
	Decrease(ctx context.Context, skuID uuid.UUID, quantity int, actor string) ([]uuid.UUID, error)
}

type instanceService struct {
	store   repositories.Store
	effects sideEffects
	metrics *metrics.Metrics
}

func NewInstanceService(store repositories.Store, availability AvailabilityService, audit AuditRecorder, m *metrics.Metrics) InstanceService {
	return &instanceService{
		store:   store,
		effects: sideEffects{availability: availability, audit: audit},
		metrics: m,
	}
}

func (s *instanceService) GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error) {
	var inst *models.Instance
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		inst, err = tx.Instances().GetByID(ctx, id)
		if err != nil {
			return err
		}
		inst.Condition = models.ConditionFunctional
		if inst.TagID != nil {
			owner, err := tx.Tags().GetByID(ctx, *inst.TagID)
			if err != nil {
				return err
			}
			inst.Condition = owner.Condition()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *instanceService) Receive(ctx context.Context, skuID uuid.UUID, quantity int, receipt models.InstanceReceipt, actor string) ([]models.Instance, error) {
	if quantity <= 0 || quantity > maxReceiptQuantity {
		return nil, validationErr("quantity", "must be between 1 and %d", maxReceiptQuantity)
	}
	if receipt.AcquisitionDate.IsZero() {
		return nil, validationErr("acquisition_date", "is required")
	}
	if receipt.AcquisitionCost.IsNegative() {
		return nil, validationErr("acquisition_cost", "cannot be negative")
	}

	var created []models.Instance
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		sku, err := tx.Catalog().GetSKU(ctx, skuID)
		if err != nil {
			return err
		}
		if sku.IsBundle {
			return &InvalidBundleError{SkuID: sku.ID, Reason: "bundles are assembled from component stock and cannot be received"}
		}
		if !sku.IsActive() {
			return fmt.Errorf("%w: %s", ErrSKUInactive, sku.Code)
		}

		for i := 0; i < quantity; i++ {
			inst := &models.Instance{
				SkuID:           sku.ID,
				AcquisitionDate: receipt.AcquisitionDate,
				AcquisitionCost: receipt.AcquisitionCost,
				Location:        receipt.Location,
				Supplier:        receipt.Supplier,
				Reference:       receipt.Reference,
				Notes:           receipt.Notes,
			}
			if err := tx.Instances().Create(ctx, inst); err != nil {
				return err
			}
			inst.Condition = models.ConditionFunctional
			created = append(created, *inst)
		}
		return nil
	})
	s.metrics.Transition("receive", err)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(created))
	for i, inst := range created {
		ids[i] = inst.ID
	}
	s.effects.apply(ctx, &commitEffects{
		skuIDs: []uuid.UUID{skuID},
		events: []models.AuditEvent{{
			EventType:   models.EventStockReceived,
			EntityType:  models.EntitySKU,
			EntityID:    skuID,
			Actor:       actor,
			Description: fmt.Sprintf("Received %d instances", quantity),
			Metadata:    models.JSONB{"instance_ids": idStrings(ids), "acquisition_cost": receipt.AcquisitionCost.String()},
			Severity:    models.SeverityInfo,
		}},
	})
	return created, nil
}

func (s *instanceService) Decrease(ctx context.Context, skuID uuid.UUID, quantity int, actor string) ([]uuid.UUID, error) {
	if quantity <= 0 || quantity > maxReceiptQuantity {
		return nil, validationErr("quantity", "must be between 1 and %d", maxReceiptQuantity)
	}

	var removed []uuid.UUID
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		if _, err := tx.Catalog().GetSKU(ctx, skuID); err != nil {
			return err
		}
		candidates, err := tx.Instances().ListAvailable(ctx, repositories.AvailableQuery{
			SkuID:       skuID,
			Limit:       quantity,
			NewestFirst: true,
		})
		if err != nil {
			return err
		}
		if len(candidates) < quantity {
			return &InsufficientStockError{SkuID: skuID, Requested: quantity, Available: len(candidates)}
		}
		for _, c := range candidates {
			removed = append(removed, c.ID)
		}
		return tx.Instances().DeleteAvailable(ctx, removed)
	})
	s.metrics.Transition("decrease", err)
	if err != nil {
		return nil, err
	}

	s.effects.apply(ctx, &commitEffects{
		skuIDs: []uuid.UUID{skuID},
		events: []models.AuditEvent{{
			EventType:   models.EventStockDecreased,
			EntityType:  models.EntitySKU,
			EntityID:    skuID,
			Actor:       actor,
			Description: fmt.Sprintf("Removed %d available instances", quantity),
			Metadata:    models.JSONB{"instance_ids": idStrings(removed)},
			Severity:    models.SeverityWarning,
		}},
	})
	return removed, nil
}
