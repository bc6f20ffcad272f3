package services

import (
	"context"
	"errors"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/google/uuid"
)

// AuditRecorder receives one event per committed state transition
type AuditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

type AuditService interface {
	AuditRecorder

	// GetEntityHistory lists events for one entity, newest first
	GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*models.AuditEvent, error)
}

type auditService struct {
	auditRepo repositories.AuditEventRepository
}

func NewAuditService(auditRepo repositories.AuditEventRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// Record validates and stores an audit event
func (s *auditService) Record(ctx context.Context, event models.AuditEvent) error {
	if event.EventType == "" {
		return errors.New("event_type is required")
	}
	if event.EntityType == "" {
		return errors.New("entity_type is required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return s.auditRepo.Create(ctx, &event)
}

func (s *auditService) GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.auditRepo.ListByEntity(ctx, entityType, entityID, limit, offset)
}
