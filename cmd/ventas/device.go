package main

import (
	"fmt"

	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/app/reconcile"
	"github.com/shashiranjanraj/ventas/config"
	"github.com/shashiranjanraj/ventas/pkg/cache"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/logger"
)

// device is the till side: the local queue and the loop that drains it
// into the store server.
type device struct {
	queue  *offline.Queue
	locker *offline.Locker
	syncer *reconcile.Syncer
	close  func()
}

func openDevice() (*device, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Boot()

	store, closeStore, err := openStore(config.OfflineStore())
	if err != nil {
		return nil, err
	}

	queue := offline.NewQueue(store)
	locker := offline.NewLocker(store, config.SyncLockTTL())
	committer := reconcile.HTTPCommitterFromConfig()
	probe := reconcile.NewHTTPProbe(config.SyncServerURL())
	sink := reconcile.Sinks{committer, reconcile.EventSink{}}

	syncer := reconcile.New(queue, locker, committer, probe, sink, reconcile.Options{
		Owner:    config.DeviceID(),
		Interval: config.SyncInterval(),
	})
	return &device{
		queue:  queue,
		locker: locker,
		syncer: syncer,
		close: func() {
			closeStore()
			logger.Shutdown()
		},
	}, nil
}

// openStore opens the queue backend named by OFFLINE_STORE.
func openStore(kind string) (offline.Store, func(), error) {
	switch kind {
	case "memory":
		logger.Warn("device: memory queue store, drafts will not survive a restart")
		return offline.NewMemoryStore(), func() {}, nil

	case "redis":
		if err := cache.Connect(); err != nil {
			return nil, nil, fmt.Errorf("device: redis store: %w", err)
		}
		return offline.NewRedisStore(cache.RDB), func() { _ = cache.Close() }, nil

	default:
		db, err := database.Open("sqlite", config.OfflineDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("device: sqlite store: %w", err)
		}
		store, err := offline.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}
}
