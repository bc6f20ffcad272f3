package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

type AuditEventRepository interface {
	// Create a new audit event
	Create(ctx context.Context, event *models.AuditEvent) error

	// List events for one entity, newest first
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*models.AuditEvent, error)
}

type auditEventRepo struct {
	db DBTX
}

func NewAuditEventRepo(db DBTX) AuditEventRepository {
	return &auditEventRepo{db: db}
}

const (
	insertAuditEventQuery = `INSERT INTO audit_events (id, event_type, entity_type, entity_id, actor, description, metadata, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	listAuditEventsQuery = `SELECT id, event_type, entity_type, entity_id, actor, description, metadata, severity, created_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
)

func (r *auditEventRepo) Create(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, insertAuditEventQuery,
		event.ID, event.EventType, event.EntityType, event.EntityID, event.Actor,
		event.Description, metadata, event.Severity, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit event: %w", err)
	}
	return nil
}

func (r *auditEventRepo) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*models.AuditEvent, error) {
	rows, err := r.db.Query(ctx, listAuditEventsQuery, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		var metadata []byte
		if err := rows.Scan(&event.ID, &event.EventType, &event.EntityType, &event.EntityID, &event.Actor,
			&event.Description, &metadata, &event.Severity, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
