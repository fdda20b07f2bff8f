package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when a release finds the lock expired or taken over by
// another owner. Nothing is deleted in that case.
var ErrLockNotHeld = errors.New("ledger lock not held by caller")

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func ledgerLockKey(referenceID string) string {
	return fmt.Sprintf("lock:ledger:%s", referenceID)
}

// AcquireLedgerLock attempts to acquire the lock guarding writes to a reference id's ledger.
// On success it returns the owner token that ReleaseLedgerLock needs; ok is false if
// the lock is already held.
func (s *LockStore) AcquireLedgerLock(ctx context.Context, referenceID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, ledgerLockKey(referenceID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseLedgerLock releases the lock for the given reference id if token still owns it.
func (s *LockStore) ReleaseLedgerLock(ctx context.Context, referenceID, token string) error {
	deleted, err := releaseScript.Run(ctx, s.client, []string{ledgerLockKey(referenceID)}, token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotHeld, referenceID)
	}
	return nil
}
