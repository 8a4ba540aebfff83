package seeders_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/database/seeders"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/testkit"
)

func TestSeedIsRepeatableAndBalanced(t *testing.T) {
	db := testkit.NewDB(t)

	require.NoError(t, seeders.RunAll(db, io.Discard))
	require.NoError(t, seeders.RunAll(db, io.Discard))

	assert.Equal(t, int64(4), testkit.Count(t, db, &models.User{}))
	assert.Equal(t, int64(5), testkit.Count(t, db, &models.Product{}))
	assert.Equal(t, int64(5), testkit.Count(t, db, &models.StockMovement{}))
	assert.Equal(t, "25.5", testkit.OnHand(t, db, "APPLE-RED").String())

	reader, err := database.Reader(db)
	require.NoError(t, err)
	var unbalanced int
	require.NoError(t, reader.Get(&unbalanced, `
		SELECT COUNT(*) FROM products p
		WHERE p.quantity <> (SELECT COALESCE(SUM(delta), 0) FROM stock_movements m WHERE m.product_id = p.id)`))
	assert.Zero(t, unbalanced)
}
