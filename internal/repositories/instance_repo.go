package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AvailableQuery selects unowned instances of one SKU
type AvailableQuery struct {
	SkuID       uuid.UUID
	Limit       int
	Exclude     []uuid.UUID
	NewestFirst bool // default order is FIFO: oldest acquisition first
}

type InstanceRepository interface {
	Create(ctx context.Context, instance *models.Instance) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Instance, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Instance, error)

	// ListAvailable returns unowned instances ordered by acquisition date,
	// then creation time, then id
	ListAvailable(ctx context.Context, q AvailableQuery) ([]models.Instance, error)

	// BindIfAvailable sets the owner only if the instance is unowned.
	// It reports false when another writer got there first.
	BindIfAvailable(ctx context.Context, id, tagID uuid.UUID) (bool, error)

	// Unbind, Rebind and DeleteOwned act only on instances currently owned by
	// tagID and fail with ErrOwnershipConflict otherwise
	Unbind(ctx context.Context, ids []uuid.UUID, tagID uuid.UUID) error
	Rebind(ctx context.Context, ids []uuid.UUID, fromTagID, toTagID uuid.UUID) error
	DeleteOwned(ctx context.Context, ids []uuid.UUID, tagID uuid.UUID) error
	DeleteAvailable(ctx context.Context, ids []uuid.UUID) error

	ListOwnership(ctx context.Context, skuID uuid.UUID) ([]models.InstanceOwnership, error)
	ListSKUIDs(ctx context.Context) ([]uuid.UUID, error)
}

type instanceRepo struct {
	db DBTX
}

func NewInstanceRepo(db DBTX) InstanceRepository {
	return &instanceRepo{db: db}
}

const instanceColumns = `id, sku_id, acquisition_date, acquisition_cost, location, supplier, reference, notes, tag_id, version, created_at, updated_at`

const (
	insertInstanceQuery = `INSERT INTO instances (id, sku_id, acquisition_date, acquisition_cost, location, supplier, reference, notes, tag_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, 1, $9, $9)`
	getInstanceQuery       = `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	getManyInstancesQuery  = `SELECT ` + instanceColumns + ` FROM instances WHERE id = ANY($1::uuid[]) ORDER BY id`
	listAvailableFIFOQuery = `SELECT ` + instanceColumns + ` FROM instances
		WHERE sku_id = $1 AND tag_id IS NULL AND NOT (id = ANY($2::uuid[]))
		ORDER BY acquisition_date ASC, created_at ASC, id ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`
	listAvailableNewestQuery = `SELECT ` + instanceColumns + ` FROM instances
		WHERE sku_id = $1 AND tag_id IS NULL AND NOT (id = ANY($2::uuid[]))
		ORDER BY acquisition_date DESC, created_at DESC, id DESC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`
	bindInstanceQuery = `UPDATE instances SET tag_id = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND tag_id IS NULL`
	unbindInstancesQuery = `UPDATE instances SET tag_id = NULL, version = version + 1, updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND tag_id = $2`
	rebindInstancesQuery = `UPDATE instances SET tag_id = $1, version = version + 1, updated_at = NOW()
		WHERE id = ANY($2::uuid[]) AND tag_id = $3`
	deleteOwnedInstancesQuery     = `DELETE FROM instances WHERE id = ANY($1::uuid[]) AND tag_id = $2`
	deleteAvailableInstancesQuery = `DELETE FROM instances WHERE id = ANY($1::uuid[]) AND tag_id IS NULL`
	listOwnershipQuery            = `SELECT i.id, i.sku_id, i.acquisition_cost, i.tag_id, t.type, t.status
		FROM instances i
		LEFT JOIN tags t ON t.id = i.tag_id
		WHERE i.sku_id = $1`
	listInstanceSKUsQuery = `SELECT DISTINCT sku_id FROM instances ORDER BY sku_id`
)

func (r *instanceRepo) Create(ctx context.Context, instance *models.Instance) error {
	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	now := time.Now()
	_, err := r.db.Exec(ctx, insertInstanceQuery,
		instance.ID, instance.SkuID, instance.AcquisitionDate, instance.AcquisitionCost,
		instance.Location, instance.Supplier, instance.Reference, instance.Notes, now)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	instance.TagID = nil
	instance.Version = 1
	instance.CreatedAt = now
	instance.UpdatedAt = now
	return nil
}

func scanInstance(row pgx.Row) (*models.Instance, error) {
	var inst models.Instance
	err := row.Scan(
		&inst.ID, &inst.SkuID, &inst.AcquisitionDate, &inst.AcquisitionCost,
		&inst.Location, &inst.Supplier, &inst.Reference, &inst.Notes,
		&inst.TagID, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Instance, error) {
	inst, err := scanInstance(r.db.QueryRow(ctx, getInstanceQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("instance", id)
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

func (r *instanceRepo) GetMany(ctx context.Context, ids []uuid.UUID) ([]models.Instance, error) {
	return r.queryInstances(ctx, getManyInstancesQuery, nonNilIDs(ids))
}

func (r *instanceRepo) ListAvailable(ctx context.Context, q AvailableQuery) ([]models.Instance, error) {
	query := listAvailableFIFOQuery
	if q.NewestFirst {
		query = listAvailableNewestQuery
	}
	return r.queryInstances(ctx, query, q.SkuID, nonNilIDs(q.Exclude), q.Limit)
}

func (r *instanceRepo) queryInstances(ctx context.Context, query string, args ...any) ([]models.Instance, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []models.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *instanceRepo) BindIfAvailable(ctx context.Context, id, tagID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, bindInstanceQuery, tagID, id)
	if err != nil {
		return false, fmt.Errorf("failed to bind instance %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *instanceRepo) Unbind(ctx context.Context, ids []uuid.UUID, tagID uuid.UUID) error {
	return r.execOwned(ctx, "unbind", len(ids), unbindInstancesQuery, nonNilIDs(ids), tagID)
}

func (r *instanceRepo) Rebind(ctx context.Context, ids []uuid.UUID, fromTagID, toTagID uuid.UUID) error {
	return r.execOwned(ctx, "rebind", len(ids), rebindInstancesQuery, toTagID, nonNilIDs(ids), fromTagID)
}

func (r *instanceRepo) DeleteOwned(ctx context.Context, ids []uuid.UUID, tagID uuid.UUID) error {
	return r.execOwned(ctx, "delete", len(ids), deleteOwnedInstancesQuery, nonNilIDs(ids), tagID)
}

func (r *instanceRepo) DeleteAvailable(ctx context.Context, ids []uuid.UUID) error {
	return r.execOwned(ctx, "delete", len(ids), deleteAvailableInstancesQuery, nonNilIDs(ids))
}

func (r *instanceRepo) execOwned(ctx context.Context, op string, want int, query string, args ...any) error {
	if want == 0 {
		return nil
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s instances: %w", op, err)
	}
	if got := tag.RowsAffected(); got != int64(want) {
		return fmt.Errorf("%s matched %d of %d instances: %w", op, got, want, ErrOwnershipConflict)
	}
	return nil
}

func (r *instanceRepo) ListOwnership(ctx context.Context, skuID uuid.UUID) ([]models.InstanceOwnership, error) {
	rows, err := r.db.Query(ctx, listOwnershipQuery, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership: %w", err)
	}
	defer rows.Close()

	var result []models.InstanceOwnership
	for rows.Next() {
		var o models.InstanceOwnership
		if err := rows.Scan(&o.InstanceID, &o.SkuID, &o.AcquisitionCost, &o.TagID, &o.TagType, &o.TagStatus); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *instanceRepo) ListSKUIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, listInstanceSKUsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocked skus: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
