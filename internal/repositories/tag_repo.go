package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type TagRepository interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error)

	// GetForUpdate reads the tag and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Tag, error)

	// Update writes the mutable fields when the stored version still matches
	// tag.Version, then increments it
	Update(ctx context.Context, tag *models.Tag) error

	ListActive(ctx context.Context, filter models.TagFilter) ([]models.Tag, error)
}

type tagRepo struct {
	db DBTX
}

func NewTagRepo(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

const tagColumns = `id, counterparty, type, purpose, project, status, due_date, items, source_tag_id, cancel_reason,
		created_by, created_at, fulfilled_by, fulfilled_at, cancelled_by, cancelled_at, version, updated_at`

const (
	insertTagQuery = `INSERT INTO tags (id, counterparty, type, purpose, project, status, due_date, items, source_tag_id,
		created_by, created_at, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $11)`
	getTagQuery          = `SELECT ` + tagColumns + ` FROM tags WHERE id = $1`
	getTagForUpdateQuery = `SELECT ` + tagColumns + ` FROM tags WHERE id = $1 FOR UPDATE`
	updateTagQuery       = `UPDATE tags SET status = $3, items = $4, due_date = $5, cancel_reason = $6,
		fulfilled_by = $7, fulfilled_at = $8, cancelled_by = $9, cancelled_at = $10,
		version = version + 1, updated_at = $11
		WHERE id = $1 AND version = $2`
)

func (r *tagRepo) Create(ctx context.Context, tag *models.Tag) error {
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now()
	}
	if tag.Items == nil {
		tag.Items = []models.TagItem{}
	}
	items, err := json.Marshal(tag.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal tag items: %w", err)
	}

	_, err = r.db.Exec(ctx, insertTagQuery,
		tag.ID, tag.Counterparty, tag.Type, tag.Purpose, tag.Project, tag.Status, tag.DueDate,
		items, tag.SourceTagID, tag.CreatedBy, tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	tag.Version = 1
	tag.UpdatedAt = tag.CreatedAt
	return nil
}

func scanTag(row pgx.Row) (*models.Tag, error) {
	var tag models.Tag
	var items []byte
	err := row.Scan(
		&tag.ID, &tag.Counterparty, &tag.Type, &tag.Purpose, &tag.Project, &tag.Status, &tag.DueDate,
		&items, &tag.SourceTagID, &tag.CancelReason,
		&tag.CreatedBy, &tag.CreatedAt, &tag.FulfilledBy, &tag.FulfilledAt, &tag.CancelledBy, &tag.CancelledAt,
		&tag.Version, &tag.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tag.Items = []models.TagItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &tag.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tag items: %w", err)
		}
	}
	return &tag, nil
}

func (r *tagRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return r.get(ctx, getTagQuery, id)
}

func (r *tagRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return r.get(ctx, getTagForUpdateQuery, id)
}

func (r *tagRepo) get(ctx context.Context, query string, id uuid.UUID) (*models.Tag, error) {
	tag, err := scanTag(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("tag", id)
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return tag, nil
}

func (r *tagRepo) Update(ctx context.Context, tag *models.Tag) error {
	items, err := json.Marshal(tag.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal tag items: %w", err)
	}
	now := time.Now()
	result, err := r.db.Exec(ctx, updateTagQuery,
		tag.ID, tag.Version, tag.Status, items, tag.DueDate, tag.CancelReason,
		tag.FulfilledBy, tag.FulfilledAt, tag.CancelledBy, tag.CancelledAt, now)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("tag %s at version %d: %w", tag.ID, tag.Version, ErrVersionConflict)
	}
	tag.Version++
	tag.UpdatedAt = now
	return nil
}

func (r *tagRepo) ListActive(ctx context.Context, filter models.TagFilter) ([]models.Tag, error) {
	conditions := []string{"status = $1"}
	args := []any{models.TagStatusActive}
	argIdx := 2

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *filter.Type)
		argIdx++
	}
	if filter.Purpose != nil {
		conditions = append(conditions, fmt.Sprintf("purpose = $%d", argIdx))
		args = append(args, *filter.Purpose)
		argIdx++
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, fmt.Sprintf("due_date IS NOT NULL AND due_date < $%d", argIdx))
		args = append(args, *filter.DueBefore)
	}

	query := `SELECT ` + tagColumns + ` FROM tags WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, *tag)
	}
	return tags, rows.Err()
}
