package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const LockKey = "ventas:sync_lock"

var (
	ErrLockHeld = errors.New("offline: sync lock held by another cycle")
	ErrLockLost = errors.New("offline: sync lock no longer ours")
)

// SyncLock is the advisory drain lock, stored as data. A lock older than
// the TTL belongs to a cycle that died and may be taken over.
type SyncLock struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (l SyncLock) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.AcquiredAt) >= ttl
}

// Locker hands out the sync lock.
type Locker struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewLocker(store Store, ttl time.Duration) *Locker {
	return &Locker{store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Locker) TTL() time.Duration { return l.ttl }

// Acquire takes the lock for owner. recovered is true when a stale lock
// left by someone else was replaced.
func (l *Locker) Acquire(ctx context.Context, owner string) (recovered bool, err error) {
	now := l.now()
	err = l.store.Update(ctx, LockKey, func(raw []byte) ([]byte, error) {
		recovered = false
		cur, err := decodeLock(raw)
		if err != nil {
			return nil, err
		}
		if cur != nil && cur.Owner != owner {
			if !cur.Expired(now, l.ttl) {
				return nil, fmt.Errorf("%w: %s since %s", ErrLockHeld, cur.Owner, cur.AcquiredAt.Format(time.RFC3339))
			}
			recovered = true
		}
		return json.Marshal(SyncLock{Owner: owner, AcquiredAt: now})
	})
	return recovered, err
}

// Refresh pushes the lock's timestamp forward so a long drain is not taken
// for a dead one.
func (l *Locker) Refresh(ctx context.Context, owner string) error {
	now := l.now()
	return l.store.Update(ctx, LockKey, func(raw []byte) ([]byte, error) {
		cur, err := decodeLock(raw)
		if err != nil {
			return nil, err
		}
		if cur == nil || cur.Owner != owner {
			return nil, ErrLockLost
		}
		return json.Marshal(SyncLock{Owner: owner, AcquiredAt: now})
	})
}

// Release drops the lock if owner still holds it.
func (l *Locker) Release(ctx context.Context, owner string) error {
	return l.store.Update(ctx, LockKey, func(raw []byte) ([]byte, error) {
		cur, err := decodeLock(raw)
		if err != nil {
			return nil, err
		}
		if cur == nil || cur.Owner != owner {
			return raw, nil
		}
		return nil, nil
	})
}

// Inspect returns the current lock, or nil when free.
func (l *Locker) Inspect(ctx context.Context) (*SyncLock, error) {
	raw, err := l.store.Load(ctx, LockKey)
	if err != nil {
		return nil, err
	}
	return decodeLock(raw)
}

func decodeLock(raw []byte) (*SyncLock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var l SyncLock
	if err := json.Unmarshal(raw, &l); err != nil {
		// An unreadable lock cannot protect anything; treat it as stale.
		return &SyncLock{Owner: "unreadable"}, nil
	}
	return &l, nil
}
