package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/repositories"
	"stockroom/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Integration(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	defer func() {
		if err := db.Cleanup(); err != nil {
			t.Errorf("Failed to clean up test database: %v", err)
		}
	}()

	ctx := context.Background()
	store := repositories.NewPostgresStore(db.Pool)
	categoryID := testhelpers.SetupTestCategory(t, db, models.CategoryTypeTool)
	sku := &models.SKU{Code: "DRILL-01", Name: "Cordless drill", CategoryID: categoryID, UnitCost: decimal.NewFromInt(150), IsLendable: true}
	testhelpers.SetupTestSKU(t, db, sku)

	acquired := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	require.NoError(t, store.InTx(ctx, func(tx repositories.Tx) error {
		for i := 0; i < 3; i++ {
			inst := &models.Instance{SkuID: sku.ID, AcquisitionDate: acquired.AddDate(0, 0, i), AcquisitionCost: decimal.NewFromInt(150)}
			if err := tx.Instances().Create(ctx, inst); err != nil {
				return err
			}
			ids = append(ids, inst.ID)
		}
		return nil
	}))

	t.Run("catalog", func(t *testing.T) {
		require.NoError(t, store.InTx(ctx, func(tx repositories.Tx) error {
			got, err := tx.Catalog().GetSKU(ctx, sku.ID)
			require.NoError(t, err)
			assert.True(t, got.IsLendable)
			categoryType, err := tx.Catalog().GetCategoryType(ctx, categoryID)
			require.NoError(t, err)
			assert.Equal(t, models.CategoryTypeTool, categoryType)
			return nil
		}))
	})

	tag := &models.Tag{Counterparty: "Crew 1", Type: models.TagTypeLoaned, Purpose: models.TagPurposeLoan, Status: models.TagStatusActive, CreatedBy: "integration"}

	t.Run("fifo bind and ownership", func(t *testing.T) {
		require.NoError(t, store.InTx(ctx, func(tx repositories.Tx) error {
			if err := tx.Tags().Create(ctx, tag); err != nil {
				return err
			}
			candidates, err := tx.Instances().ListAvailable(ctx, repositories.AvailableQuery{SkuID: sku.ID, Limit: 2})
			require.NoError(t, err)
			require.Len(t, candidates, 2)
			assert.Equal(t, ids[:2], []uuid.UUID{candidates[0].ID, candidates[1].ID})

			tag.Items = []models.TagItem{{ID: uuid.New(), SkuID: sku.ID, Quantity: 2, Remaining: 2, SelectionMethod: models.SelectionFIFO, InstanceIDs: ids[:2]}}
			for _, c := range candidates {
				ok, err := tx.Instances().BindIfAvailable(ctx, c.ID, tag.ID)
				require.NoError(t, err)
				assert.True(t, ok)
			}
			return tx.Tags().Update(ctx, tag)
		}))

		require.NoError(t, store.InTx(ctx, func(tx repositories.Tx) error {
			rows, err := tx.Instances().ListOwnership(ctx, sku.ID)
			require.NoError(t, err)
			loaned := 0
			for _, row := range rows {
				if row.TagType != nil && *row.TagType == models.TagTypeLoaned {
					loaned++
				}
			}
			assert.Equal(t, 2, loaned)

			stored, err := tx.Tags().GetByID(ctx, tag.ID)
			require.NoError(t, err)
			assert.Equal(t, ids[:2], stored.BoundInstanceIDs())
			return nil
		}))
	})

	t.Run("concurrent binds claim once", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.InTx(ctx, func(tx repositories.Tx) error {
					ok, err := tx.Instances().BindIfAvailable(ctx, ids[2], tag.ID)
					if err != nil {
						return err
					}
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("stale tag update", func(t *testing.T) {
		stale := tag.Clone()
		require.NoError(t, store.InTx(ctx, func(tx repositories.Tx) error {
			fresh, err := tx.Tags().GetForUpdate(ctx, tag.ID)
			if err != nil {
				return err
			}
			return tx.Tags().Update(ctx, fresh)
		}))

		err := store.InTx(ctx, func(tx repositories.Tx) error {
			return tx.Tags().Update(ctx, stale)
		})
		assert.ErrorIs(t, err, repositories.ErrVersionConflict)
	})
}
