package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CatalogRepository is the read side of catalog maintenance, which lives
// outside this service.
type CatalogRepository interface {
	GetSKU(ctx context.Context, id uuid.UUID) (*models.SKU, error)
	GetCategoryType(ctx context.Context, categoryID uuid.UUID) (models.CategoryType, error)
	// ListBundles returns every bundle SKU ordered by code
	ListBundles(ctx context.Context) ([]models.SKU, error)
}

type catalogRepo struct {
	db DBTX
}

func NewCatalogRepo(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

const (
	skuColumns = `id, code, name, category_id, unit_cost, is_bundle, bundle_items, is_lendable, status, created_at, updated_at`

	getSKUQuery          = `SELECT ` + skuColumns + ` FROM skus WHERE id = $1`
	listBundlesQuery     = `SELECT ` + skuColumns + ` FROM skus WHERE is_bundle ORDER BY code`
	getCategoryTypeQuery = `SELECT type FROM categories WHERE id = $1`
)

func scanSKU(row pgx.Row) (*models.SKU, error) {
	var sku models.SKU
	var bundleItems []byte
	if err := row.Scan(
		&sku.ID, &sku.Code, &sku.Name, &sku.CategoryID, &sku.UnitCost, &sku.IsBundle,
		&bundleItems, &sku.IsLendable, &sku.Status, &sku.CreatedAt, &sku.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(bundleItems) > 0 {
		if err := json.Unmarshal(bundleItems, &sku.BundleItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bundle items: %w", err)
		}
	}
	return &sku, nil
}

func (r *catalogRepo) GetSKU(ctx context.Context, id uuid.UUID) (*models.SKU, error) {
	sku, err := scanSKU(r.db.QueryRow(ctx, getSKUQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("sku", id)
		}
		return nil, fmt.Errorf("failed to get sku: %w", err)
	}
	return sku, nil
}

func (r *catalogRepo) ListBundles(ctx context.Context) ([]models.SKU, error) {
	rows, err := r.db.Query(ctx, listBundlesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	defer rows.Close()

	var bundles []models.SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, *sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	return bundles, nil
}

func (r *catalogRepo) GetCategoryType(ctx context.Context, categoryID uuid.UUID) (models.CategoryType, error) {
	var raw string
	if err := r.db.QueryRow(ctx, getCategoryTypeQuery, categoryID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound("category", categoryID)
		}
		return "", fmt.Errorf("failed to get category type: %w", err)
	}
	return models.ParseCategoryType(raw)
}
