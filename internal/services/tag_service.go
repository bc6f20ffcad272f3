package services

import (
	"context"
	"fmt"
	"time"

	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
)

type FulfillOptions struct {
	// Condition applies to loan returns; defaults to functional
	Condition *models.Condition `json:"condition,omitempty"`
	Notes     *string           `json:"notes,omitempty"`
}

type ReturnRequest struct {
	Selections []models.ReturnSelection `json:"selections"`
	Condition  *models.Condition        `json:"condition,omitempty"`
	Notes      *string                  `json:"notes,omitempty"`
}

// TransitionResult is the tag after a lifecycle step, plus the maintenance or
// damage tag created when returned units were not functional
type TransitionResult struct {
	Tag       *models.Tag `json:"tag"`
	RoutedTag *models.Tag `json:"routed_tag,omitempty"`
}

type TagService interface {
	GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error)

	// Cancel releases every bound instance. Only active tags can be cancelled.
	Cancel(ctx context.Context, id uuid.UUID, reason *string, actor string) (*models.Tag, error)

	// Fulfill consumes the instances of consumption tags and returns the
	// instances of loans and maintenance holds
	Fulfill(ctx context.Context, id uuid.UUID, opts FulfillOptions, actor string) (*TransitionResult, error)

	PartialReturn(ctx context.Context, id uuid.UUID, req ReturnRequest, actor string) (*TransitionResult, error)
	PartialFulfill(ctx context.Context, id uuid.UUID, selections []models.ReturnSelection, actor string) (*TransitionResult, error)

	ListOverdueLoans(ctx context.Context, asOf time.Time) ([]models.Tag, error)
}

type tagService struct {
	store   repositories.Store
	router  ConditionRouter
	effects sideEffects
	metrics *metrics.Metrics
}

func NewTagService(
	store repositories.Store,
	router ConditionRouter,
	availability AvailabilityService,
	audit AuditRecorder,
	archiver TagArchiver,
	m *metrics.Metrics,
) TagService {
	return &tagService{
		store:   store,
		router:  router,
		effects: sideEffects{availability: availability, audit: audit, archiver: archiver},
		metrics: m,
	}
}

// returnsOnFulfill reports whether the tag's instances come back to stock
// instead of being consumed
func returnsOnFulfill(tag *models.Tag) bool {
	return tag.Type.IsLoan() || tag.Purpose == models.TagPurposeMaintenance
}

func markFulfilled(tag *models.Tag, actor string) {
	now := time.Now()
	by := actor
	tag.Status = models.TagStatusFulfilled
	tag.FulfilledBy = &by
	tag.FulfilledAt = &now
}

// releaseUnits removes ids from the tag's lines and drops lines that reach
// zero. It reports whether every id was found.
func releaseUnits(tag *models.Tag, ids []uuid.UUID) bool {
	remove := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	found := 0
	items := make([]models.TagItem, 0, len(tag.Items))
	for _, item := range tag.Items {
		keep := make([]uuid.UUID, 0, len(item.InstanceIDs))
		for _, id := range item.InstanceIDs {
			if remove[id] {
				found++
				continue
			}
			keep = append(keep, id)
		}
		if len(keep) != len(item.InstanceIDs) {
			item.InstanceIDs = keep
			item.Remaining = len(keep)
			if item.Remaining == 0 {
				continue
			}
		}
		items = append(items, item)
	}
	tag.Items = items
	return found == len(remove)
}

// resolveSelections checks every selected id is bound to the named line
func resolveSelections(tag *models.Tag, selections []models.ReturnSelection) ([]models.InstanceRef, error) {
	if len(selections) == 0 {
		return nil, &InvalidSelectionError{Reason: "no instances selected"}
	}

	seen := map[uuid.UUID]bool{}
	var units []models.InstanceRef
	for _, sel := range selections {
		idx := tag.ItemIndex(sel.ItemID)
		if idx < 0 {
			return nil, &InvalidSelectionError{Reason: fmt.Sprintf("line %s is not part of tag %s", sel.ItemID, tag.ID)}
		}
		if len(sel.InstanceIDs) == 0 {
			return nil, &InvalidSelectionError{Reason: fmt.Sprintf("line %s: no instances selected", sel.ItemID)}
		}
		item := tag.Items[idx]
		bound := make(map[uuid.UUID]bool, len(item.InstanceIDs))
		for _, id := range item.InstanceIDs {
			bound[id] = true
		}
		for _, id := range sel.InstanceIDs {
			if seen[id] {
				return nil, &InvalidSelectionError{InstanceID: id, Reason: "instance selected more than once"}
			}
			if !bound[id] {
				return nil, &InvalidSelectionError{InstanceID: id, Reason: fmt.Sprintf("not bound to line %s", sel.ItemID)}
			}
			seen[id] = true
			units = append(units, models.InstanceRef{ID: id, SkuID: item.SkuID})
		}
	}
	return units, nil
}

func conditionOrDefault(c *models.Condition) (models.Condition, error) {
	if c == nil {
		return models.ConditionFunctional, nil
	}
	if !c.IsValid() {
		return "", validationErr("condition", "must be one of: functional, needs_maintenance, broken")
	}
	return *c, nil
}

func (s *tagService) GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	var tag *models.Tag
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		tag, err = tx.Tags().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *tagService) Cancel(ctx context.Context, id uuid.UUID, reason *string, actor string) (*models.Tag, error) {
	var tag *models.Tag
	effects := &commitEffects{}
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		tag, err = tx.Tags().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tag.IsActive() {
			return &InvalidStateError{EntityID: tag.ID, Operation: "cancel", State: string(tag.Status)}
		}

		released := tag.BoundInstanceIDs()
		if err := tx.Instances().Unbind(ctx, released, tag.ID); err != nil {
			return err
		}

		now := time.Now()
		by := actor
		tag.ZeroItems()
		tag.Status = models.TagStatusCancelled
		tag.CancelReason = reason
		tag.CancelledBy = &by
		tag.CancelledAt = &now
		if err := tx.Tags().Update(ctx, tag); err != nil {
			return err
		}

		effects.touchTag(tag)
		metadata := models.JSONB{"instance_ids": idStrings(released)}
		if reason != nil {
			metadata["reason"] = *reason
		}
		effects.record(tagEvent(models.EventAllocationCancelled, tag, actor,
			fmt.Sprintf("Cancelled, released %d instances", len(released)), metadata))
		effects.closeIfTerminal(tag)
		return nil
	})
	s.metrics.Transition("cancel", err)
	if err != nil {
		return nil, err
	}
	s.effects.apply(ctx, effects)
	return tag, nil
}

func (s *tagService) Fulfill(ctx context.Context, id uuid.UUID, opts FulfillOptions, actor string) (*TransitionResult, error) {
	condition, err := conditionOrDefault(opts.Condition)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{}
	effects := &commitEffects{}
	err = s.store.InTx(ctx, func(tx repositories.Tx) error {
		tag, err := tx.Tags().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tag.IsActive() {
			return &InvalidStateError{EntityID: tag.ID, Operation: "fulfill", State: string(tag.Status)}
		}

		units := tag.BoundInstances()
		metadata := models.JSONB{"instance_ids": idStrings(refIDs(units))}
		if returnsOnFulfill(tag) {
			routed, err := s.router.RouteReturn(ctx, tx, tag, units, condition, opts.Notes, actor)
			if err != nil {
				return err
			}
			metadata["condition"] = string(condition)
			if routed != nil {
				result.RoutedTag = routed
				metadata["routed_tag_id"] = routed.ID.String()
				effects.record(tagEvent(models.EventConditionRouted, routed, actor,
					fmt.Sprintf("Returned %d instances as %s", len(units), condition), nil))
			}
		} else {
			if condition != models.ConditionFunctional {
				return &InvalidStateError{EntityID: tag.ID, Operation: fmt.Sprintf("fulfill as %s", condition), State: string(tag.Type)}
			}
			if err := tx.Instances().DeleteOwned(ctx, refIDs(units), tag.ID); err != nil {
				return err
			}
			metadata["consumed"] = len(units)
		}

		effects.touchTag(tag)
		tag.ZeroItems()
		markFulfilled(tag, actor)
		if err := tx.Tags().Update(ctx, tag); err != nil {
			return err
		}

		result.Tag = tag
		effects.record(tagEvent(models.EventAllocationFulfilled, tag, actor,
			fmt.Sprintf("Fulfilled with %d instances", len(units)), metadata))
		effects.closeIfTerminal(tag)
		return nil
	})
	s.metrics.Transition("fulfill", err)
	if err != nil {
		return nil, err
	}
	s.effects.apply(ctx, effects)
	return result, nil
}

func (s *tagService) PartialReturn(ctx context.Context, id uuid.UUID, req ReturnRequest, actor string) (*TransitionResult, error) {
	condition, err := conditionOrDefault(req.Condition)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{}
	effects := &commitEffects{}
	err = s.store.InTx(ctx, func(tx repositories.Tx) error {
		tag, err := tx.Tags().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tag.IsActive() {
			return &InvalidStateError{EntityID: tag.ID, Operation: "return instances from", State: string(tag.Status)}
		}
		units, err := resolveSelections(tag, req.Selections)
		if err != nil {
			return err
		}

		metadata := models.JSONB{"instance_ids": idStrings(refIDs(units)), "condition": string(condition)}
		if returnsOnFulfill(tag) {
			routed, err := s.router.RouteReturn(ctx, tx, tag, units, condition, req.Notes, actor)
			if err != nil {
				return err
			}
			if routed != nil {
				result.RoutedTag = routed
				metadata["routed_tag_id"] = routed.ID.String()
				effects.record(tagEvent(models.EventConditionRouted, routed, actor,
					fmt.Sprintf("Returned %d instances as %s", len(units), condition), nil))
			}
		} else {
			if condition != models.ConditionFunctional {
				return &InvalidStateError{EntityID: tag.ID, Operation: fmt.Sprintf("return as %s", condition), State: string(tag.Type)}
			}
			if err := tx.Instances().Unbind(ctx, refIDs(units), tag.ID); err != nil {
				return err
			}
		}

		effects.touchTag(tag)
		releaseUnits(tag, refIDs(units))
		if tag.TotalRemaining() == 0 {
			markFulfilled(tag, actor)
		}
		if err := tx.Tags().Update(ctx, tag); err != nil {
			return err
		}

		result.Tag = tag
		metadata["remaining"] = tag.TotalRemaining()
		effects.record(tagEvent(models.EventPartialReturn, tag, actor,
			fmt.Sprintf("Returned %d instances", len(units)), metadata))
		effects.closeIfTerminal(tag)
		return nil
	})
	s.metrics.Transition("partial_return", err)
	if err != nil {
		return nil, err
	}
	s.effects.apply(ctx, effects)
	return result, nil
}

func (s *tagService) PartialFulfill(ctx context.Context, id uuid.UUID, selections []models.ReturnSelection, actor string) (*TransitionResult, error) {
	result := &TransitionResult{}
	effects := &commitEffects{}
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		tag, err := tx.Tags().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !tag.IsActive() {
			return &InvalidStateError{EntityID: tag.ID, Operation: "consume instances of", State: string(tag.Status)}
		}
		if returnsOnFulfill(tag) {
			return &InvalidStateError{EntityID: tag.ID, Operation: "consume instances of", State: string(tag.Purpose)}
		}
		units, err := resolveSelections(tag, selections)
		if err != nil {
			return err
		}
		if err := tx.Instances().DeleteOwned(ctx, refIDs(units), tag.ID); err != nil {
			return err
		}

		effects.touchTag(tag)
		releaseUnits(tag, refIDs(units))
		if tag.TotalRemaining() == 0 {
			markFulfilled(tag, actor)
		}
		if err := tx.Tags().Update(ctx, tag); err != nil {
			return err
		}

		result.Tag = tag
		effects.record(tagEvent(models.EventPartialFulfill, tag, actor,
			fmt.Sprintf("Consumed %d instances", len(units)),
			models.JSONB{"instance_ids": idStrings(refIDs(units)), "remaining": tag.TotalRemaining()}))
		effects.closeIfTerminal(tag)
		return nil
	})
	s.metrics.Transition("partial_fulfill", err)
	if err != nil {
		return nil, err
	}
	s.effects.apply(ctx, effects)
	return result, nil
}

func (s *tagService) ListOverdueLoans(ctx context.Context, asOf time.Time) ([]models.Tag, error) {
	loaned := models.TagTypeLoaned
	var tags []models.Tag
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		tags, err = tx.Tags().ListActive(ctx, models.TagFilter{Type: &loaned, DueBefore: &asOf})
		return err
	})
	return tags, err
}
