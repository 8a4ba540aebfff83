package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/ventas/config"
)

func TestSaleDefaults(t *testing.T) {
	assert.True(t, config.TaxRate().Equal(decimal.RequireFromString("0.16")))
	assert.Equal(t, "VEN", config.SalePrefix())
	assert.Equal(t, 6, config.SaleCodeWidth())
	assert.Contains(t, config.PaymentMethods(), "cash")
}

func TestSetOverridesAndNormalises(t *testing.T) {
	config.Set("PAYMENT_METHODS", " Cash , CARD,, ")
	defer config.Set("PAYMENT_METHODS", "")
	assert.Equal(t, []string{"cash", "card"}, config.PaymentMethods())

	config.Set("SYNC_LOCK_TTL", "45s")
	defer config.Set("SYNC_LOCK_TTL", "")
	assert.Equal(t, 45*time.Second, config.SyncLockTTL())
}

func TestInvalidValuesFallBack(t *testing.T) {
	config.Set("TAX_RATE", "-1")
	config.Set("COMMIT_TIMEOUT", "soon")
	defer config.Set("TAX_RATE", "")
	defer config.Set("COMMIT_TIMEOUT", "")

	assert.True(t, config.TaxRate().Equal(decimal.RequireFromString("0.16")))
	assert.Equal(t, 10*time.Second, config.CommitTimeout())
}

func TestOfflineStoreAllowList(t *testing.T) {
	config.Set("OFFLINE_STORE", "cassandra")
	defer config.Set("OFFLINE_STORE", "")
	assert.Equal(t, "sqlite", config.OfflineStore())
}
