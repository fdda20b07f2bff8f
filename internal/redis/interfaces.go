package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireLedgerLock(ctx context.Context, referenceID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLedgerLock(ctx context.Context, referenceID, token string) error
}

// CacheStoreInterface defines the interface for ledger summary caching.
type CacheStoreInterface interface {
	GetSummary(ctx context.Context, referenceID, currency string) (*CachedSummary, error)
	SetSummary(ctx context.Context, summary *CachedSummary) error
	InvalidateLedger(ctx context.Context, referenceID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)
