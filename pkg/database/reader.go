package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// Reader wraps the gorm connection pool in sqlx for hand-written read
// queries. It shares the pool, so it never opens extra connections.
func Reader(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: reader: %w", err)
	}
	return sqlx.NewDb(sqlDB, sqlxDriverName(db.Dialector.Name())), nil
}

// sqlxDriverName maps a gorm dialector name to the driver name sqlx uses
// to pick a bind-variable style.
func sqlxDriverName(dialect string) string {
	switch dialect {
	case "postgres":
		return "pgx"
	case "sqlite":
		return "sqlite3"
	default:
		return dialect
	}
}
