package app

import (
	"fmt"

	"github.com/shashiranjanraj/ventas/config"
	"github.com/shashiranjanraj/ventas/pkg/cache"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/logger"
)

// BootDB loads configuration and connects the database.
func BootDB() error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Boot()
	if err := database.Connect(); err != nil {
		return err
	}
	logger.Info("database: connected", "driver", config.DatabaseDriver())
	return nil
}

// Boot is BootDB plus the Redis cache. A missing Redis is logged and
// tolerated; reads then go to the database.
func Boot() error {
	if err := BootDB(); err != nil {
		return err
	}
	if err := cache.Connect(); err != nil {
		logger.Warn("cache: disabled", "error", err)
	}
	return nil
}

// Shutdown closes what Boot opened.
func Shutdown() {
	if err := cache.Close(); err != nil {
		logger.Warn("cache: close", "error", err)
	}
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logger.Shutdown()
}
