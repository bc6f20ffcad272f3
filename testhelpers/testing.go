package testhelpers

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/repositories"
	"stockroom/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Fixture seeds an in-memory store with a product and a tool category
type Fixture struct {
	t     *testing.T
	Store *repositories.MemoryStore

	ProductCategory uuid.UUID
	ToolCategory    uuid.UUID

	// next acquisition date handed out by AddInstances
	clock time.Time
}

func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	f := &Fixture{
		t:               t,
		Store:           repositories.NewMemoryStore(),
		ProductCategory: uuid.New(),
		ToolCategory:    uuid.New(),
		clock:           time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	f.Store.PutCategory(models.Category{ID: f.ProductCategory, Name: "Consumables", Type: models.CategoryTypeProduct})
	f.Store.PutCategory(models.Category{ID: f.ToolCategory, Name: "Tools", Type: models.CategoryTypeTool})
	return f
}

type SKUOption func(*models.SKU)

func Lendable() SKUOption {
	return func(s *models.SKU) { s.IsLendable = true }
}

func Discontinued() SKUOption {
	return func(s *models.SKU) { s.Status = models.SKUStatusDiscontinued }
}

func InCategory(id uuid.UUID) SKUOption {
	return func(s *models.SKU) { s.CategoryID = id }
}

// AddSKU seeds an active product SKU
func (f *Fixture) AddSKU(code string, opts ...SKUOption) *models.SKU {
	sku := &models.SKU{
		ID:         uuid.New(),
		Code:       code,
		Name:       code,
		CategoryID: f.ProductCategory,
		UnitCost:   decimal.NewFromInt(10),
		Status:     models.SKUStatusActive,
		CreatedAt:  f.clock,
		UpdatedAt:  f.clock,
	}
	for _, opt := range opts {
		opt(sku)
	}
	f.Store.PutSKU(*sku)
	return sku
}

// AddTool seeds a lendable SKU in the tool category
func (f *Fixture) AddTool(code string, opts ...SKUOption) *models.SKU {
	return f.AddSKU(code, append([]SKUOption{InCategory(f.ToolCategory), Lendable()}, opts...)...)
}

func (f *Fixture) AddBundle(code string, items ...models.BundleItem) *models.SKU {
	return f.AddSKU(code, func(s *models.SKU) {
		s.IsBundle = true
		s.BundleItems = items
	})
}

// AddInstances seeds n available instances. Every instance is acquired one
// hour after the previous one, so seeding order is FIFO order.
func (f *Fixture) AddInstances(skuID uuid.UUID, n int, cost string) []models.Instance {
	f.t.Helper()

	unitCost, err := decimal.NewFromString(cost)
	if err != nil {
		f.t.Fatalf("Failed to parse cost %q: %v", cost, err)
	}

	out := make([]models.Instance, 0, n)
	for i := 0; i < n; i++ {
		inst := models.Instance{
			ID:              uuid.New(),
			SkuID:           skuID,
			AcquisitionDate: f.clock,
			AcquisitionCost: unitCost,
			Version:         1,
			CreatedAt:       f.clock,
			UpdatedAt:       f.clock,
		}
		f.clock = f.clock.Add(time.Hour)
		f.Store.PutInstance(inst)
		out = append(out, inst)
	}
	return out
}

// IDs returns the ids of instances in order
func IDs(instances []models.Instance) []uuid.UUID {
	ids := make([]uuid.UUID, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	return ids
}

// OwnedBy returns the ids of stored instances bound to tagID, FIFO ordered
func (f *Fixture) OwnedBy(tagID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, inst := range f.Store.Instances() {
		if inst.TagID != nil && *inst.TagID == tagID {
			ids = append(ids, inst.ID)
		}
	}
	return ids
}

// AvailableOf returns the ids of stored unbound instances of skuID
func (f *Fixture) AvailableOf(skuID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, inst := range f.Store.Instances() {
		if inst.SkuID == skuID && inst.TagID == nil {
			ids = append(ids, inst.ID)
		}
	}
	return ids
}

func StringPtr(s string) *string {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB connects to TEST_DATABASE_URL and applies the schema. The test
// is skipped when no database is configured or reachable.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, connString, 4)
	if err != nil {
		t.Skipf("Test database unavailable: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() error {
			defer pool.Close()
			_, err := pool.Exec(context.Background(), "TRUNCATE audit_events, instances, tags, skus, categories")
			return err
		},
	}
}

// SetupTestCategory creates a category for testing
func SetupTestCategory(t *testing.T, db *TestDB, categoryType models.CategoryType) uuid.UUID {
	t.Helper()

	categoryID := uuid.New()
	query := `
		INSERT INTO categories (id, name, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`
	_, err := db.Pool.Exec(context.Background(), query, categoryID, "Test "+string(categoryType), categoryType, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test category: %v", err)
	}
	return categoryID
}

// SetupTestSKU creates a SKU for testing
func SetupTestSKU(t *testing.T, db *TestDB, sku *models.SKU) {
	t.Helper()

	if sku.ID == uuid.Nil {
		sku.ID = uuid.New()
	}
	if sku.Status == "" {
		sku.Status = models.SKUStatusActive
	}
	items, err := json.Marshal(sku.BundleItems)
	if err != nil {
		t.Fatalf("Failed to marshal bundle items: %v", err)
	}
	if sku.BundleItems == nil {
		items = []byte("[]")
	}

	query := `
		INSERT INTO skus (id, code, name, category_id, unit_cost, is_bundle, bundle_items, is_lendable, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err = db.Pool.Exec(context.Background(), query,
		sku.ID, sku.Code, sku.Name, sku.CategoryID, sku.UnitCost, sku.IsBundle,
		items, sku.IsLendable, sku.Status, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test sku: %v", err)
	}
}
