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

// conditionCounterparty owns condition holds that did not come from a return
const conditionCounterparty = "inventory"

// ConditionChange describes the outcome of a direct condition change
type ConditionChange struct {
	Instance      *models.Instance `json:"instance"`
	PreviousTagID *uuid.UUID       `json:"previous_tag_id,omitempty"`
	NewTagID      *uuid.UUID       `json:"new_tag_id,omitempty"`
	Changed       bool             `json:"changed"`
}

type ConditionRouter interface {
	// RouteReturn moves instances coming back from source according to their
	// condition: functional units become available, the others move to a new
	// maintenance or damage tag which is returned. Runs inside tx.
	RouteReturn(ctx context.Context, tx repositories.Tx, source *models.Tag, units []models.InstanceRef, condition models.Condition, notes *string, actor string) (*models.Tag, error)

	ChangeInstanceCondition(ctx context.Context, instanceID uuid.UUID, condition models.Condition, reason *string, actor string) (*ConditionChange, error)
}

type conditionRouter struct {
	store   repositories.Store
	effects sideEffects
	metrics *metrics.Metrics
}

func NewConditionRouter(store repositories.Store, availability AvailabilityService, audit AuditRecorder, archiver TagArchiver, m *metrics.Metrics) ConditionRouter {
	return &conditionRouter{
		store:   store,
		effects: sideEffects{availability: availability, audit: audit, archiver: archiver},
		metrics: m,
	}
}

// conditionTagClass maps a non-functional condition to the tag that holds it
func conditionTagClass(condition models.Condition) (models.TagType, models.TagPurpose) {
	if condition == models.ConditionBroken {
		return models.TagTypeBroken, models.TagPurposeDamage
	}
	return models.TagTypeReserved, models.TagPurposeMaintenance
}

func refIDs(units []models.InstanceRef) []uuid.UUID {
	ids := make([]uuid.UUID, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

func (r *conditionRouter) RouteReturn(ctx context.Context, tx repositories.Tx, source *models.Tag, units []models.InstanceRef, condition models.Condition, notes *string, actor string) (*models.Tag, error) {
	if !condition.IsValid() {
		return nil, validationErr("condition", "must be one of: functional, needs_maintenance, broken")
	}
	if len(units) == 0 {
		return nil, nil
	}
	if condition == models.ConditionFunctional {
		return nil, tx.Instances().Unbind(ctx, refIDs(units), source.ID)
	}
	return r.hold(ctx, tx, source, units, condition, notes, actor)
}

// hold creates a maintenance or damage tag over units. When origin is set the
// units are moved from it; otherwise they must currently be available.
func (r *conditionRouter) hold(ctx context.Context, tx repositories.Tx, origin *models.Tag, units []models.InstanceRef, condition models.Condition, notes *string, actor string) (*models.Tag, error) {
	tagType, purpose := conditionTagClass(condition)
	tag := &models.Tag{
		ID:           uuid.New(),
		Counterparty: conditionCounterparty,
		Type:         tagType,
		Purpose:      purpose,
		Status:       models.TagStatusActive,
		CreatedBy:    actor,
		CreatedAt:    time.Now(),
	}
	if origin != nil {
		sourceID := origin.ID
		tag.Counterparty = origin.Counterparty
		tag.Project = origin.Project
		tag.SourceTagID = &sourceID
	}

	// one line per SKU, in the order the units arrived
	lineFor := map[uuid.UUID]int{}
	for _, u := range units {
		idx, ok := lineFor[u.SkuID]
		if !ok {
			idx = len(tag.Items)
			lineFor[u.SkuID] = idx
			tag.Items = append(tag.Items, models.TagItem{
				ID:              uuid.New(),
				SkuID:           u.SkuID,
				SelectionMethod: models.SelectionManual,
				InstanceIDs:     []uuid.UUID{},
				Notes:           notes,
			})
		}
		tag.Items[idx].InstanceIDs = append(tag.Items[idx].InstanceIDs, u.ID)
		tag.Items[idx].Quantity++
		tag.Items[idx].Remaining++
	}

	if err := tx.Tags().Create(ctx, tag); err != nil {
		return nil, err
	}

	if origin != nil {
		if err := tx.Instances().Rebind(ctx, refIDs(units), origin.ID, tag.ID); err != nil {
			return nil, err
		}
		return tag, nil
	}
	for _, u := range units {
		ok, err := tx.Instances().BindIfAvailable(ctx, u.ID, tag.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &BindConflictError{InstanceID: u.ID}
		}
	}
	return tag, nil
}

func (r *conditionRouter) ChangeInstanceCondition(ctx context.Context, instanceID uuid.UUID, condition models.Condition, reason *string, actor string) (*ConditionChange, error) {
	if !condition.IsValid() {
		return nil, validationErr("condition", "must be one of: functional, needs_maintenance, broken")
	}

	change := &ConditionChange{}
	effects := &commitEffects{}
	err := r.store.InTx(ctx, func(tx repositories.Tx) error {
		inst, err := tx.Instances().GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		ref := []models.InstanceRef{{ID: inst.ID, SkuID: inst.SkuID}}

		if inst.TagID == nil {
			if condition == models.ConditionFunctional {
				inst.Condition = models.ConditionFunctional
				change.Instance = inst
				return nil
			}
			held, err := r.hold(ctx, tx, nil, ref, condition, reason, actor)
			if err != nil {
				return err
			}
			change.NewTagID = &held.ID
			effects.record(tagEvent(models.EventConditionRouted, held, actor,
				fmt.Sprintf("Instance %s marked %s", inst.ID, condition), nil))
		} else {
			owner, err := tx.Tags().GetForUpdate(ctx, *inst.TagID)
			if err != nil {
				return err
			}
			previous := owner.ID
			change.PreviousTagID = &previous

			if !owner.IsActive() {
				return &InvalidStateError{EntityID: owner.ID, Operation: "release instance from", State: string(owner.Status)}
			}
			switch {
			case owner.Purpose == models.TagPurposeLoan:
				if condition != models.ConditionBroken {
					return &InvalidStateError{EntityID: inst.ID, Operation: fmt.Sprintf("mark %s a loaned instance", condition), State: string(owner.Type)}
				}
			case owner.Purpose.IsCondition():
				if owner.Condition() == condition {
					inst.Condition = condition
					change.Instance = inst
					return nil
				}
			default:
				return &InvalidStateError{EntityID: inst.ID, Operation: "change condition of", State: string(owner.Purpose)}
			}

			if !releaseUnits(owner, []uuid.UUID{inst.ID}) {
				return fmt.Errorf("tag %s does not list instance %s: %w", owner.ID, inst.ID, repositories.ErrOwnershipConflict)
			}
			if owner.TotalRemaining() == 0 {
				markFulfilled(owner, actor)
			}

			if condition == models.ConditionFunctional {
				if err := tx.Instances().Unbind(ctx, []uuid.UUID{inst.ID}, owner.ID); err != nil {
					return err
				}
			} else {
				held, err := r.hold(ctx, tx, owner, ref, condition, reason, actor)
				if err != nil {
					return err
				}
				change.NewTagID = &held.ID
				effects.record(tagEvent(models.EventConditionRouted, held, actor,
					fmt.Sprintf("Instance %s moved from tag %s as %s", inst.ID, owner.ID, condition), nil))
			}
			if err := tx.Tags().Update(ctx, owner); err != nil {
				return err
			}
			effects.closeIfTerminal(owner)
		}

		updated, err := tx.Instances().GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		updated.Condition = condition
		change.Instance = updated
		change.Changed = true

		effects.touch(inst.SkuID)
		metadata := models.JSONB{"condition": string(condition)}
		if reason != nil {
			metadata["reason"] = *reason
		}
		effects.record(models.AuditEvent{
			EventType:   models.EventConditionChanged,
			EntityType:  models.EntityInstance,
			EntityID:    inst.ID,
			Actor:       actor,
			Description: fmt.Sprintf("Condition changed to %s", condition),
			Metadata:    metadata,
			Severity:    models.SeverityInfo,
		})
		return nil
	})
	r.metrics.Transition("condition_change", err)
	if err != nil {
		return nil, err
	}

	r.effects.apply(ctx, effects)
	return change, nil
}
