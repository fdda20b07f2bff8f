package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCacheTTL bounds how stale a cached summary can be if an invalidation is lost.
const SummaryCacheTTL = 30 * time.Second

const ledgerCachePrefix = "cache:ledger:"

// CacheStore caches reconciled ledger summaries in Redis.
// Each reference id is one hash with a field per currency, so invalidation is a single DEL.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedSummary represents a cached ledger summary. Amounts are decimal strings.
type CachedSummary struct {
	ReferenceID    string `json:"reference_id"`
	Currency       string `json:"currency"`
	AmountCharged  string `json:"amount_charged"`
	AmountRefunded string `json:"amount_refunded"`
	Net            string `json:"net"`
	EventCount     int    `json:"event_count"`
}

// GetSummary retrieves a summary from cache. Returns nil on a cache miss.
func (s *CacheStore) GetSummary(ctx context.Context, referenceID, currency string) (*CachedSummary, error) {
	data, err := s.client.HGet(ctx, ledgerCachePrefix+referenceID, currency).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var summary CachedSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetSummary stores a summary in cache.
func (s *CacheStore) SetSummary(ctx context.Context, summary *CachedSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	key := ledgerCachePrefix + summary.ReferenceID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, summary.Currency, data)
		pipe.Expire(ctx, key, SummaryCacheTTL)
		return nil
	})
	return err
}

// InvalidateLedger removes every cached summary for a reference id.
func (s *CacheStore) InvalidateLedger(ctx context.Context, referenceID string) error {
	return s.client.Del(ctx, ledgerCachePrefix+referenceID).Err()
}
