// Package testkit holds the helpers the package tests share: an in-memory
// SQLite database with the schema migrated, seed helpers, a scripted
// transport for pkg/http and request helpers for handlers.
//
//	db := testkit.NewDB(t)
//	testkit.SeedUnits(t, db, "P-001", 5)
//	rec := testkit.Request(t, handler, "POST", "/api/sales", draft, nil)
package testkit

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/database"
)

// NewDB opens a private in-memory SQLite database named after the test and
// migrates every model into it. It is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err, "testkit: open sqlite")
	require.NoError(t, db.AutoMigrate(models.All()...), "testkit: migrate")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SeedUnits creates a unit-counted product with qty on hand at 10.00 each.
func SeedUnits(t testing.TB, db *gorm.DB, id string, qty int64) *models.Product {
	t.Helper()
	return SeedProduct(t, db, models.Product{
		ID:        id,
		Name:      "Product " + id,
		UnitPrice: decimal.NewFromInt(10),
		SaleType:  models.SaleTypeUnit,
		Quantity:  decimal.NewFromInt(qty),
	})
}

// SeedWeight creates a weighed product with kg on hand at 25.00 per kg.
func SeedWeight(t testing.TB, db *gorm.DB, id, kg string) *models.Product {
	t.Helper()
	return SeedProduct(t, db, models.Product{
		ID:        id,
		Name:      "Bulk " + id,
		UnitPrice: decimal.NewFromInt(25),
		SaleType:  models.SaleTypeWeight,
		Quantity:  decimal.RequireFromString(kg),
	})
}

func SeedProduct(t testing.TB, db *gorm.DB, p models.Product) *models.Product {
	t.Helper()
	require.NoError(t, db.Create(&p).Error, "testkit: seed product %s", p.ID)
	return &p
}

// SeedUser creates an operator whose password is "secret".
func SeedUser(t testing.TB, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	u := models.User{Username: username, Name: username, Password: string(hash), Role: role}
	require.NoError(t, db.Create(&u).Error, "testkit: seed user %s", username)
	return &u
}

// OnHand reads a product's stock straight from the table.
func OnHand(t testing.TB, db *gorm.DB, id string) decimal.Decimal {
	t.Helper()
	var p models.Product
	require.NoError(t, db.Select("quantity").Where("id = ?", id).Take(&p).Error)
	return p.Quantity
}

// Count returns the number of rows of model matching the optional condition.
func Count(t testing.TB, db *gorm.DB, model any, where ...any) int64 {
	t.Helper()
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}
