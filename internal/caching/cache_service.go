package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SummaryCache stores derived per-SKU inventory summaries. Entries are
// rebuilt from instance and tag state, so a miss is never an error.
type SummaryCache interface {
	GetSummary(ctx context.Context, skuID uuid.UUID) (*models.InventorySummary, error)
	SetSummary(ctx context.Context, summary *models.InventorySummary, ttl time.Duration) error
	DeleteSummary(ctx context.Context, skuID uuid.UUID) error
	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) SummaryCache {
	// Accept redis://host:port as well as host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	} else {
		log.Printf("Redis connection established at %s", parsedAddr)
	}

	return &redisCacheService{client: client}
}

// NewRedisCacheServiceWithClient wraps an existing client
func NewRedisCacheServiceWithClient(client *redis.Client) SummaryCache {
	return &redisCacheService{client: client}
}

func summaryKey(skuID uuid.UUID) string {
	return fmt.Sprintf("stockroom:summary:%s", skuID.String())
}

func (r *redisCacheService) GetSummary(ctx context.Context, skuID uuid.UUID) (*models.InventorySummary, error) {
	data, err := r.client.Get(ctx, summaryKey(skuID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var summary models.InventorySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *redisCacheService) SetSummary(ctx context.Context, summary *models.InventorySummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, summaryKey(summary.SkuID), data, ttl).Err()
}

func (r *redisCacheService) DeleteSummary(ctx context.Context, skuID uuid.UUID) error {
	return r.client.Del(ctx, summaryKey(skuID)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
