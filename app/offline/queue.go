// Package offline keeps sales drafted while the device has no connection.
//
// Drafts live as one ordered JSON array under PendingKey in the device's
// key-value Store. Each gets a LOCAL- identity that doubles as its
// idempotency key when it is finally committed.
//
//	q := offline.NewQueue(offline.NewMemoryStore())
//	p, _ := q.Enqueue(ctx, draft)      // p.LocalID == "LOCAL-6f1c..."
//	pending, _ := q.ListPending(ctx)   // FIFO
//	_ = q.MarkSynced(ctx, p.LocalID)   // only after a confirmed commit
//
// Nothing leaves the queue except through MarkSynced (committed) or
// Acknowledge (a failure an operator has seen).
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/metrics"
)

const (
	PendingKey  = "ventas:pending_sales"
	LocalPrefix = "LOCAL-"
)

var (
	ErrNotFound  = errors.New("offline: draft not found")
	ErrNotFailed = errors.New("offline: draft has not failed")
	ErrCorrupt   = errors.New("offline: queue data is unreadable")
	ErrDuplicate = errors.New("offline: local id already queued")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// PendingLocalSale is one queued draft.
type PendingLocalSale struct {
	LocalID       string           `json:"local_id"`
	Draft         models.SaleDraft `json:"draft"`
	CreatedAt     time.Time        `json:"created_at"`
	Synced        bool             `json:"synced"`
	Status        Status           `json:"status"`
	Attempts      int              `json:"attempts"`
	LastAttemptAt *time.Time       `json:"last_attempt_at,omitempty"`
	FailureCode   string           `json:"failure_code,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	FailedAt      *time.Time       `json:"failed_at,omitempty"`
	Reported      bool             `json:"reported"`
}

// IsLocalID reports whether id was minted by the queue. Server sale codes
// never carry the prefix.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

func NewLocalID() string {
	return LocalPrefix + uuid.NewString()
}

// Queue is the device's FIFO of drafts awaiting the server.
type Queue struct {
	store Store
	now   func() time.Time
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue appends a copy of draft under a fresh local identity. It never
// merges with or overwrites an existing entry.
func (q *Queue) Enqueue(ctx context.Context, draft models.SaleDraft) (PendingLocalSale, error) {
	return q.EnqueueAs(ctx, NewLocalID(), draft)
}

// EnqueueAs is Enqueue with a local id the caller already used, so a sale
// whose online attempt had an unknown outcome keeps its idempotency key.
func (q *Queue) EnqueueAs(ctx context.Context, id string, draft models.SaleDraft) (PendingLocalSale, error) {
	if !IsLocalID(id) {
		return PendingLocalSale{}, fmt.Errorf("offline: %q is not a local id", id)
	}
	now := q.now()

	draft = draft.WithIdempotencyKey(id)
	if draft.DraftedAt.IsZero() {
		draft.DraftedAt = now
	}
	rec := PendingLocalSale{
		LocalID:   id,
		Draft:     draft,
		CreatedAt: now,
		Status:    StatusPending,
	}

	err := q.update(ctx, func(list []PendingLocalSale) ([]PendingLocalSale, error) {
		if indexOf(list, id) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
		}
		return append(list, rec), nil
	})
	if err != nil {
		return PendingLocalSale{}, err
	}
	return rec, nil
}

// ListPending returns the drafts still to be committed, oldest first.
// Flagged failures are excluded; see Failed.
func (q *Queue) ListPending(ctx context.Context) ([]PendingLocalSale, error) {
	return q.filter(ctx, func(p PendingLocalSale) bool {
		return !p.Synced && p.Status == StatusPending
	})
}

// Failed returns drafts that failed permanently and wait for an operator.
func (q *Queue) Failed(ctx context.Context) ([]PendingLocalSale, error) {
	return q.filter(ctx, func(p PendingLocalSale) bool { return p.Status == StatusFailed })
}

// All returns every entry in insertion order.
func (q *Queue) All(ctx context.Context) ([]PendingLocalSale, error) {
	return q.filter(ctx, func(PendingLocalSale) bool { return true })
}

// Get returns one entry.
func (q *Queue) Get(ctx context.Context, localID string) (PendingLocalSale, error) {
	list, err := q.load(ctx)
	if err != nil {
		return PendingLocalSale{}, err
	}
	for _, p := range list {
		if p.LocalID == localID {
			return p, nil
		}
	}
	return PendingLocalSale{}, fmt.Errorf("%w: %s", ErrNotFound, localID)
}

// MarkSynced removes a draft the server has durably committed.
func (q *Queue) MarkSynced(ctx context.Context, localID string) error {
	return q.update(ctx, func(list []PendingLocalSale) ([]PendingLocalSale, error) {
		i := indexOf(list, localID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, localID)
		}
		return remove(list, i), nil
	})
}

// MarkFailed flags a draft as permanently failed. It stays in the queue,
// unreported, until it is reported and acknowledged.
func (q *Queue) MarkFailed(ctx context.Context, localID, code, reason string) error {
	now := q.now()
	return q.modify(ctx, localID, func(p *PendingLocalSale) error {
		p.Status = StatusFailed
		p.FailureCode = code
		p.FailureReason = reason
		p.FailedAt = &now
		p.Reported = false
		return nil
	})
}

// MarkReported records that a failure reached an operator-visible channel.
func (q *Queue) MarkReported(ctx context.Context, localID string) error {
	return q.modify(ctx, localID, func(p *PendingLocalSale) error {
		if p.Status != StatusFailed {
			return fmt.Errorf("%w: %s", ErrNotFailed, localID)
		}
		p.Reported = true
		return nil
	})
}

// RecordAttempt counts a submission attempt.
func (q *Queue) RecordAttempt(ctx context.Context, localID string) error {
	now := q.now()
	return q.modify(ctx, localID, func(p *PendingLocalSale) error {
		p.Attempts++
		p.LastAttemptAt = &now
		return nil
	})
}

// Acknowledge removes a failed draft after an operator has dealt with it.
// Pending drafts cannot be acknowledged away.
func (q *Queue) Acknowledge(ctx context.Context, localID string) error {
	return q.update(ctx, func(list []PendingLocalSale) ([]PendingLocalSale, error) {
		i := indexOf(list, localID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, localID)
		}
		if list[i].Status != StatusFailed {
			return nil, fmt.Errorf("%w: %s", ErrNotFailed, localID)
		}
		return remove(list, i), nil
	})
}

// ─── Storage ──────────────────────────────────────────────────────────────────

func (q *Queue) load(ctx context.Context) ([]PendingLocalSale, error) {
	raw, err := q.store.Load(ctx, PendingKey)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (q *Queue) filter(ctx context.Context, keep func(PendingLocalSale) bool) ([]PendingLocalSale, error) {
	list, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingLocalSale, 0, len(list))
	for _, p := range list {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (q *Queue) modify(ctx context.Context, localID string, fn func(*PendingLocalSale) error) error {
	return q.update(ctx, func(list []PendingLocalSale) ([]PendingLocalSale, error) {
		i := indexOf(list, localID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, localID)
		}
		if err := fn(&list[i]); err != nil {
			return nil, err
		}
		return list, nil
	})
}

func (q *Queue) update(ctx context.Context, fn func([]PendingLocalSale) ([]PendingLocalSale, error)) error {
	var pending int
	err := q.store.Update(ctx, PendingKey, func(raw []byte) ([]byte, error) {
		list, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if list, err = fn(list); err != nil {
			return nil, err
		}

		pending = 0
		for _, p := range list {
			if p.Status == StatusPending {
				pending++
			}
		}
		if list == nil {
			list = []PendingLocalSale{}
		}
		return json.Marshal(list)
	})
	if err != nil {
		return err
	}
	metrics.OfflinePending.Set(float64(pending))
	return nil
}

// decode never turns unreadable data into an empty queue; that would drop
// every draft in it.
func decode(raw []byte) ([]PendingLocalSale, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []PendingLocalSale
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return list, nil
}

func indexOf(list []PendingLocalSale, localID string) int {
	for i, p := range list {
		if p.LocalID == localID {
			return i
		}
	}
	return -1
}

func remove(list []PendingLocalSale, i int) []PendingLocalSale {
	out := make([]PendingLocalSale, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
