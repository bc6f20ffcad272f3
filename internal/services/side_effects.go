package services

import (
	"context"
	"log"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

// commitEffects collects what a transaction changed so the follow-up work
// runs only after it commits
type commitEffects struct {
	skuIDs []uuid.UUID
	events []models.AuditEvent
	closed []*models.Tag
}

func (c *commitEffects) touch(ids ...uuid.UUID) {
	c.skuIDs = append(c.skuIDs, ids...)
}

func (c *commitEffects) touchTag(tag *models.Tag) {
	for _, item := range tag.Items {
		c.skuIDs = append(c.skuIDs, item.SkuID)
		if item.BundleSkuID != nil {
			c.skuIDs = append(c.skuIDs, *item.BundleSkuID)
		}
	}
}

func (c *commitEffects) record(event models.AuditEvent) {
	c.events = append(c.events, event)
}

func (c *commitEffects) closeIfTerminal(tag *models.Tag) {
	if tag.IsTerminal() {
		c.closed = append(c.closed, tag.Clone())
	}
}

// sideEffects refreshes summaries, records audit events and archives closed
// tags. None of these can fail the operation that triggered them.
type sideEffects struct {
	availability AvailabilityService
	audit        AuditRecorder
	archiver     TagArchiver
}

func (e *sideEffects) apply(ctx context.Context, c *commitEffects) {
	if e.availability != nil {
		e.availability.RefreshSummaries(ctx, c.skuIDs)
	}
	if e.audit != nil {
		for _, event := range c.events {
			if err := e.audit.Record(ctx, event); err != nil {
				log.Printf("Failed to record audit event %s for %s: %v", event.EventType, event.EntityID, err)
			}
		}
	}
	if e.archiver != nil {
		for _, tag := range c.closed {
			if err := e.archiver.Archive(ctx, tag); err != nil {
				log.Printf("Failed to archive tag %s: %v", tag.ID, err)
			}
		}
	}
}

func tagEvent(eventType string, tag *models.Tag, actor, description string, metadata models.JSONB) models.AuditEvent {
	if metadata == nil {
		metadata = models.JSONB{}
	}
	metadata["tag_type"] = string(tag.Type)
	metadata["status"] = string(tag.Status)
	return models.AuditEvent{
		EventType:   eventType,
		EntityType:  models.EntityTag,
		EntityID:    tag.ID,
		Actor:       actor,
		Description: description,
		Metadata:    metadata,
		Severity:    models.SeverityInfo,
	}
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
