package seeders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/config"
	"github.com/shashiranjanraj/ventas/pkg/auth"
)

func init() {
	Register("operators", SeedOperators)
	Register("catalogue", SeedCatalogue)
}

// SeedOperators creates one operator per role; till1 is the demo till's
// sync account. Passwords come from
// SEED_PASSWORD. Existing usernames are left alone.
func SeedOperators(db *gorm.DB) error {
	hash, err := auth.HashPassword(config.Get("SEED_PASSWORD", "ventas123"))
	if err != nil {
		return err
	}
	for _, u := range []models.User{
		{Username: "admin", Name: "Administrator", Role: models.RoleAdmin},
		{Username: "manager", Name: "Store manager", Role: models.RoleManager},
		{Username: "cashier", Name: "Cashier", Role: models.RoleCashier},
		{Username: "till1", Name: "Till one", Role: models.RoleDevice},
	} {
		u.Password = hash
		if err := db.Where(models.User{Username: u.Username}).FirstOrCreate(&u).Error; err != nil {
			return fmt.Errorf("operator %s: %w", u.Username, err)
		}
	}
	return nil
}

type demoProduct struct {
	id, name, price, minStock, opening string
	saleType                           models.SaleType
}

var catalogue = []demoProduct{
	{"COLA-355", "Cola 355ml", "1.50", "12", "48", models.SaleTypeUnit},
	{"BREAD-WHITE", "White bread", "2.10", "5", "20", models.SaleTypeUnit},
	{"EGGS-12", "Eggs (dozen)", "3.40", "4", "15", models.SaleTypeUnit},
	{"APPLE-RED", "Red apples", "2.80", "3.000", "25.500", models.SaleTypeWeight},
	{"CHEESE-AGED", "Aged cheese", "18.90", "1.000", "4.250", models.SaleTypeWeight},
}

// SeedCatalogue adds the demo products with opening stock booked through
// the ledger, so the stock and its movements agree from the start.
func SeedCatalogue(db *gorm.DB) error {
	l := ledger.New(db)
	for _, d := range catalogue {
		err := db.Transaction(func(tx *gorm.DB) error {
			var existing models.Product
			err := tx.Where("id = ?", d.id).Take(&existing).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			p := models.Product{
				ID:        d.id,
				Name:      d.name,
				UnitPrice: decimal.RequireFromString(d.price),
				SaleType:  d.saleType,
				Quantity:  decimal.Zero,
				MinStock:  decimal.RequireFromString(d.minStock),
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			opening, err := models.NewQuantity(d.saleType, decimal.RequireFromString(d.opening))
			if err != nil {
				return err
			}
			_, err = l.Apply(tx, ledger.Movement{
				ProductID:  p.ID,
				Delta:      opening,
				Kind:       models.MovementPurchase,
				Note:       "opening stock",
				OperatorID: "seed",
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("product %s: %w", d.id, err)
		}
	}
	return nil
}
