package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/ventas/pkg/database"
)

// Store is the device's local key-value store.
//
// Update runs fn on the current value and writes what it returns as one
// atomic step; returning nil removes the key. fn may run more than once
// when a store retries after a conflicting write, so it must not have side
// effects beyond its return values.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

var ErrStoreConflict = errors.New("offline: store kept changing under update")

// ─── Memory ───────────────────────────────────────────────────────────────────

// MemoryStore keeps values in process memory. Tests and demos only.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.data[key]), nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(clone(s.data[key]))
	if err != nil {
		return err
	}
	if next == nil {
		delete(s.data, key)
		return nil
	}
	s.data[key] = clone(next)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// ─── Redis ────────────────────────────────────────────────────────────────────

// RedisStore keeps values in the device's local Redis. Updates use
// WATCH/MULTI and retry when another writer got in first.
type RedisStore struct {
	rdb     *redis.Client
	retries int
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, retries: 10}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("offline/redis: get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			cur = nil
		} else if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if next == nil {
				p.Del(ctx, key)
			} else {
				p.Set(ctx, key, next, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.retries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrStoreConflict, key)
}

// ─── SQL ──────────────────────────────────────────────────────────────────────

// KVEntry is one row of the device's local key-value table.
type KVEntry struct {
	Key       string `gorm:"column:kv_key;primaryKey;size:191"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (KVEntry) TableName() string { return "kv_entries" }

// GormStore keeps values in a SQL table, normally a SQLite file on the
// device.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the kv_entries table if it does not exist.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("offline/sql: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, key string) ([]byte, error) {
	var e KVEntry
	err := s.db.WithContext(ctx).Where("kv_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("offline/sql: load %s: %w", key, err)
	}
	return e.Value, nil
}

func (s *GormStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e KVEntry
		var cur []byte
		err := database.ForUpdate(tx).Where("kv_key = ?", key).Take(&e).Error
		switch {
		case err == nil:
			cur = e.Value
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("offline/sql: lock %s: %w", key, err)
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		if next == nil {
			return tx.Where("kv_key = ?", key).Delete(&KVEntry{}).Error
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kv_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&KVEntry{Key: key, Value: next}).Error
	})
}
