package caching

import (
	"context"
	"os"
	"testing"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSummaryCache_SetGetDelete(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	cache := NewRedisCacheServiceWithClient(client)
	skuID := uuid.New()

	summary := &models.InventorySummary{
		Availability: models.Availability{SkuID: skuID, Total: 5, Available: 3, Reserved: 1, Loaned: 1},
		TotalValue:   decimal.RequireFromString("52.50"),
		AverageCost:  decimal.RequireFromString("10.50"),
		RefreshedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cache.SetSummary(ctx, summary, time.Minute))
	defer cache.DeleteSummary(ctx, skuID)

	got, err := cache.GetSummary(ctx, skuID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Available)
	assert.True(t, summary.TotalValue.Equal(got.TotalValue))
	assert.True(t, summary.RefreshedAt.Equal(got.RefreshedAt))

	require.NoError(t, cache.DeleteSummary(ctx, skuID))
	got, err = cache.GetSummary(ctx, skuID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSummaryCache_MissIsNil(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	got, err := NewRedisCacheServiceWithClient(client).GetSummary(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSummaryKey(t *testing.T) {
	id := uuid.MustParse("3f1c4f0e-9f5b-4b8e-8f7e-2a7d5b9c0d11")
	assert.Equal(t, "stockroom:summary:3f1c4f0e-9f5b-4b8e-8f7e-2a7d5b9c0d11", summaryKey(id))
}
