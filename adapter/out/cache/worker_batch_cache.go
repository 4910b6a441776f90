package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"booking_server/core/domain"
	"booking_server/core/port/out"
	"booking_server/pkg/cache"

	"github.com/google/uuid"
)

const batchKeyPrefix = "sync:batch:"

// BatchCache keeps the batch an operator is reviewing while the integration sits at conflicts_pending.
type BatchCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewBatchCache(c *cache.RedisCache, ttl time.Duration) *BatchCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &BatchCache{cache: c, ttl: ttl}
}

func batchKey(businessID uuid.UUID) string {
	return batchKeyPrefix + businessID.String()
}

// LoadBatch returns (nil, nil) on a miss or after expiry.
func (b *BatchCache) LoadBatch(ctx context.Context, businessID uuid.UUID) (*domain.FetchedBatch, error) {
	var batch domain.FetchedBatch
	found, err := b.cache.GetJSON(ctx, batchKey(businessID), &batch)
	if err != nil || !found {
		return nil, err
	}
	return &batch, nil
}

func (b *BatchCache) StoreBatch(ctx context.Context, batch *domain.FetchedBatch) error {
	return b.cache.SetJSON(ctx, batchKey(batch.BusinessID), batch, b.ttl)
}

func (b *BatchCache) PurgeBatch(ctx context.Context, businessID uuid.UUID) error {
	return b.cache.Delete(ctx, batchKey(businessID))
}

// MemoryBatchCache is the single-process fallback used when Redis is not configured.
// Batches are stored encoded so later mutation by the caller cannot leak into the cache.
type MemoryBatchCache struct {
	entries *cache.LocalCache
}

func NewMemoryBatchCache(ttl time.Duration) *MemoryBatchCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryBatchCache{entries: cache.NewLocalCache(1000, ttl)}
}

func (m *MemoryBatchCache) LoadBatch(ctx context.Context, businessID uuid.UUID) (*domain.FetchedBatch, error) {
	data, ok := m.entries.Get(batchKey(businessID))
	if !ok {
		return nil, nil
	}
	var batch domain.FetchedBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (m *MemoryBatchCache) StoreBatch(ctx context.Context, batch *domain.FetchedBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	m.entries.Set(batchKey(batch.BusinessID), data)
	return nil
}

func (m *MemoryBatchCache) PurgeBatch(ctx context.Context, businessID uuid.UUID) error {
	m.entries.Delete(batchKey(businessID))
	return nil
}

var (
	_ out.EventBatchCache = (*BatchCache)(nil)
	_ out.EventBatchCache = (*MemoryBatchCache)(nil)
)
