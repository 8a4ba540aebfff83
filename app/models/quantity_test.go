package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/app/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewQuantityRejectsFractionalUnits(t *testing.T) {
	_, err := models.NewQuantity(models.SaleTypeUnit, d("1.5"))
	assert.ErrorIs(t, err, models.ErrFractionalUnits)

	q, err := models.NewQuantity(models.SaleTypeUnit, d("3"))
	require.NoError(t, err)
	n, err := q.Units()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestWeightKeepsDecimals(t *testing.T) {
	q, err := models.NewQuantity(models.SaleTypeWeight, d("0.375"))
	require.NoError(t, err)
	assert.Equal(t, "0.375", q.String())
	assert.True(t, q.Decimal().Equal(d("0.375")))

	_, err = q.Units()
	assert.ErrorIs(t, err, models.ErrSaleTypeMix)
}

func TestWeightRejectsExcessPrecision(t *testing.T) {
	_, err := models.NewQuantity(models.SaleTypeWeight, d("0.0001"))
	assert.Error(t, err)
}

func TestUnknownKind(t *testing.T) {
	_, err := models.NewQuantity(models.SaleType("litre"), d("1"))
	assert.ErrorIs(t, err, models.ErrUnknownSaleType)
}

func TestAddRequiresMatchingKinds(t *testing.T) {
	_, err := models.Units(1).Add(models.Weight(d("1")))
	assert.ErrorIs(t, err, models.ErrSaleTypeMix)

	sum, err := models.Weight(d("1.250")).Add(models.Weight(d("0.5")).Neg())
	require.NoError(t, err)
	assert.Equal(t, "0.750", sum.String())
}

func TestProductBelowMinimum(t *testing.T) {
	p := models.Product{Quantity: d("2"), MinStock: d("3")}
	assert.True(t, p.BelowMinimum())

	p.MinStock = decimal.Zero
	assert.False(t, p.BelowMinimum())
}
