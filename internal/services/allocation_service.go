package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
)

type AllocationService interface {
	// Allocate binds instances for every line of the draft and returns the
	// new active tag. Either every line is fully bound or nothing is.
	Allocate(ctx context.Context, draft models.TagDraft, actor string) (*models.Tag, error)
}

type allocationService struct {
	store        repositories.Store
	availability AvailabilityService
	expander     BundleExpander
	effects      sideEffects
	metrics      *metrics.Metrics
}

func NewAllocationService(
	store repositories.Store,
	availability AvailabilityService,
	expander BundleExpander,
	audit AuditRecorder,
	archiver TagArchiver,
	m *metrics.Metrics,
) AllocationService {
	return &allocationService{
		store:        store,
		availability: availability,
		expander:     expander,
		effects:      sideEffects{availability: availability, audit: audit, archiver: archiver},
		metrics:      m,
	}
}

type plannedLine struct {
	line models.DraftLine
	sku  *models.SKU
	reqs []Requirement
}

func (s *allocationService) Allocate(ctx context.Context, draft models.TagDraft, actor string) (*models.Tag, error) {
	if err := validateDraft(draft); err != nil {
		s.metrics.Allocation(string(draft.Type), err)
		return nil, err
	}

	var tag *models.Tag
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		plan, err := s.plan(ctx, tx, draft)
		if err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, tx, plan); err != nil {
			return err
		}

		tag = &models.Tag{
			ID:           uuid.New(),
			Counterparty: strings.TrimSpace(draft.Counterparty),
			Type:         draft.Type,
			Purpose:      draft.Type.DefaultPurpose(),
			Project:      draft.Project,
			Status:       models.TagStatusActive,
			DueDate:      draft.DueDate,
			Items:        []models.TagItem{},
			CreatedBy:    actor,
			CreatedAt:    time.Now(),
		}
		if err := tx.Tags().Create(ctx, tag); err != nil {
			return err
		}

		items, err := s.bind(ctx, tx, tag.ID, plan)
		if err != nil {
			return err
		}
		tag.Items = items
		return tx.Tags().Update(ctx, tag)
	})
	s.metrics.Allocation(string(draft.Type), err)
	if err != nil {
		return nil, err
	}

	effects := &commitEffects{}
	effects.touchTag(tag)
	effects.record(tagEvent(models.EventAllocationCreated, tag, actor,
		fmt.Sprintf("Allocated %d instances to %s", tag.TotalRemaining(), tag.Counterparty),
		models.JSONB{"instance_ids": idStrings(tag.BoundInstanceIDs())}))
	s.effects.apply(ctx, effects)

	return tag, nil
}

func validateDraft(draft models.TagDraft) error {
	if strings.TrimSpace(draft.Counterparty) == "" {
		return validationErr("counterparty", "is required")
	}
	if !draft.Type.IsValid() {
		return validationErr("type", "must be one of: reserved, broken, imperfect, loaned, stock")
	}
	if draft.Domain != nil && !draft.Domain.IsValid() {
		return validationErr("domain", "must be one of: product, tool")
	}
	if len(draft.Lines) == 0 {
		return validationErr("lines", "at least one line is required")
	}

	selected := map[uuid.UUID]bool{}
	for i, line := range draft.Lines {
		if line.Quantity <= 0 {
			return validationErr(fmt.Sprintf("lines[%d].quantity", i), "must be positive")
		}
		if len(line.InstanceIDs) == 0 {
			continue
		}
		if len(line.InstanceIDs) != line.Quantity {
			return validationErr(fmt.Sprintf("lines[%d].instance_ids", i), "must list exactly %d instances", line.Quantity)
		}
		for _, id := range line.InstanceIDs {
			if selected[id] {
				return &InvalidSelectionError{InstanceID: id, Reason: "instance selected more than once"}
			}
			selected[id] = true
		}
	}
	return nil
}

func (s *allocationService) plan(ctx context.Context, tx repositories.Tx, draft models.TagDraft) ([]plannedLine, error) {
	plan := make([]plannedLine, 0, len(draft.Lines))
	for i, line := range draft.Lines {
		sku, err := tx.Catalog().GetSKU(ctx, line.SkuID)
		if err != nil {
			return nil, err
		}
		if err := checkCatalogRules(ctx, tx, draft, sku); err != nil {
			return nil, err
		}
		if len(line.InstanceIDs) > 0 && sku.IsBundle {
			return nil, &InvalidSelectionError{Reason: fmt.Sprintf("lines[%d]: instances cannot be selected for bundle %s", i, sku.Code)}
		}

		reqs, err := s.expander.Expand(ctx, tx.Catalog(), sku, line.Quantity)
		if err != nil {
			return nil, err
		}
		// Every component of a bundle obeys the same rules as the bundle itself
		for _, req := range reqs {
			if req.BundleSkuID == nil {
				continue
			}
			component, err := tx.Catalog().GetSKU(ctx, req.SkuID)
			if err != nil {
				return nil, err
			}
			if err := checkCatalogRules(ctx, tx, draft, component); err != nil {
				return nil, fmt.Errorf("bundle %s: %w", sku.Code, err)
			}
		}
		plan = append(plan, plannedLine{line: line, sku: sku, reqs: reqs})
	}
	return plan, nil
}

// checkCatalogRules rejects discontinued SKUs, SKUs outside the draft's
// domain and non-lendable SKUs on loans
func checkCatalogRules(ctx context.Context, tx repositories.Tx, draft models.TagDraft, sku *models.SKU) error {
	if !sku.IsActive() {
		return fmt.Errorf("%w: %s", ErrSKUInactive, sku.Code)
	}
	if draft.Domain != nil {
		categoryType, err := tx.Catalog().GetCategoryType(ctx, sku.CategoryID)
		if err != nil {
			return err
		}
		if categoryType != *draft.Domain {
			return fmt.Errorf("%w: %s is a %s", ErrDomainMismatch, sku.Code, categoryType)
		}
	}
	if draft.Type.IsLoan() && !sku.IsLendable {
		return fmt.Errorf("%w: %s", ErrNotLendable, sku.Code)
	}
	return nil
}

// checkAvailability aggregates requirements per SKU across all lines and
// fails before anything is bound
func (s *allocationService) checkAvailability(ctx context.Context, tx repositories.Tx, plan []plannedLine) error {
	totals := map[uuid.UUID]int{}
	var order []uuid.UUID
	for _, p := range plan {
		for _, req := range p.reqs {
			if _, ok := totals[req.SkuID]; !ok {
				order = append(order, req.SkuID)
			}
			totals[req.SkuID] += req.Quantity
		}
	}

	for _, skuID := range order {
		avail, err := s.availability.Compute(ctx, tx, skuID)
		if err != nil {
			return err
		}
		if avail.Available < totals[skuID] {
			return &InsufficientStockError{SkuID: skuID, Requested: totals[skuID], Available: avail.Available}
		}
	}
	return nil
}

func (s *allocationService) bind(ctx context.Context, tx repositories.Tx, tagID uuid.UUID, plan []plannedLine) ([]models.TagItem, error) {
	var items []models.TagItem
	var fifo []int

	// Explicit selections go first so FIFO never takes a unit someone asked for by id
	for _, p := range plan {
		for _, req := range p.reqs {
			item := models.TagItem{
				ID:              uuid.New(),
				SkuID:           req.SkuID,
				BundleSkuID:     req.BundleSkuID,
				Quantity:        req.Quantity,
				SelectionMethod: models.SelectionFIFO,
				InstanceIDs:     []uuid.UUID{},
				Notes:           p.line.Notes,
			}
			if len(p.line.InstanceIDs) > 0 {
				if err := s.bindSelected(ctx, tx, tagID, req.SkuID, p.line.InstanceIDs); err != nil {
					return nil, err
				}
				item.SelectionMethod = models.SelectionManual
				item.InstanceIDs = append(item.InstanceIDs, p.line.InstanceIDs...)
				item.Remaining = len(item.InstanceIDs)
			} else {
				fifo = append(fifo, len(items))
			}
			items = append(items, item)
		}
	}

	for _, idx := range fifo {
		ids, err := s.bindFIFO(ctx, tx, tagID, items[idx].SkuID, items[idx].Quantity)
		if err != nil {
			return nil, err
		}
		items[idx].InstanceIDs = ids
		items[idx].Remaining = len(ids)
	}
	return items, nil
}

func (s *allocationService) bindSelected(ctx context.Context, tx repositories.Tx, tagID, skuID uuid.UUID, ids []uuid.UUID) error {
	found, err := tx.Instances().GetMany(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]models.Instance, len(found))
	for _, inst := range found {
		byID[inst.ID] = inst
	}

	for _, id := range ids {
		inst, ok := byID[id]
		if !ok {
			return &InvalidSelectionError{InstanceID: id, Reason: "instance does not exist"}
		}
		if inst.SkuID != skuID {
			return &InvalidSelectionError{InstanceID: id, Reason: "instance belongs to a different sku"}
		}
		ok, err := tx.Instances().BindIfAvailable(ctx, id, tagID)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidSelectionError{InstanceID: id, Reason: "instance is not available"}
		}
	}
	return nil
}

// bindFIFO claims quantity unowned instances, oldest first. A candidate lost
// to a concurrent writer is skipped and the next one tried.
func (s *allocationService) bindFIFO(ctx context.Context, tx repositories.Tx, tagID, skuID uuid.UUID, quantity int) ([]uuid.UUID, error) {
	bound := make([]uuid.UUID, 0, quantity)
	var tried []uuid.UUID

	for len(bound) < quantity {
		candidates, err := tx.Instances().ListAvailable(ctx, repositories.AvailableQuery{
			SkuID:   skuID,
			Limit:   quantity - len(bound),
			Exclude: tried,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, s.shortfall(ctx, tx, tagID, skuID, quantity-len(bound))
		}

		for _, candidate := range candidates {
			tried = append(tried, candidate.ID)
			ok, err := tx.Instances().BindIfAvailable(ctx, candidate.ID, tagID)
			if err != nil {
				return nil, err
			}
			if !ok {
				conflict := &BindConflictError{InstanceID: candidate.ID}
				log.Printf("WARN: %v, trying next candidate for tag %s", conflict, tagID)
				s.metrics.BindConflict()
				continue
			}
			bound = append(bound, candidate.ID)
			if len(bound) == quantity {
				break
			}
		}
	}
	return bound, nil
}

// shortfall reports stock for the whole draft once rivals took the remaining
// candidates: what the tag already holds of the SKU plus what is still unowned,
// against what it holds plus what it still needs
func (s *allocationService) shortfall(ctx context.Context, tx repositories.Tx, tagID, skuID uuid.UUID, missing int) error {
	rows, err := tx.Instances().ListOwnership(ctx, skuID)
	if err != nil {
		return fmt.Errorf("failed to read ownership: %w", err)
	}
	held, unowned := 0, 0
	for _, row := range rows {
		switch {
		case row.TagID == nil:
			unowned++
		case *row.TagID == tagID:
			held++
		}
	}
	return &InsufficientStockError{SkuID: skuID, Requested: held + missing, Available: held + unowned}
}
