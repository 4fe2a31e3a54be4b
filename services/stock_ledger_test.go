package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/stock"
)

func TestLedgerAppendAndBalance(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn Tub", nil)

	now := time.Now()
	balance, err := ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Date: now, Kind: models.StockKindInvord,
		Quantity: decimal.NewFromInt(10), Unit: stock.Nos,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10)))

	balance, err = ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Date: now, Kind: models.StockKindSales,
		Quantity: decimal.NewFromInt(3), Unit: stock.Nos,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(7)))

	info, err := ledger.GetBalance(theater.ID, product.ID, now)
	require.NoError(t, err)
	assert.True(t, info.Balance.Equal(decimal.NewFromInt(7)))
	assert.Len(t, info.Entries, 2)
	assert.True(t, info.Opening.IsZero())
}

func TestLedgerClosingEqualsOpeningPlusEntries(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Cola Cup", func(p *models.Product) {
		p.StockUnit = "L"
		p.PackQuantity = "250 ML"
	})

	now := time.Now()
	events := []StockEventInput{
		{Date: now, Kind: models.StockKindInvord, Quantity: decimal.NewFromInt(20), Unit: stock.Liter},
		{Date: now, Kind: models.StockKindSales, Quantity: decimal.NewFromInt(500), Unit: stock.Milliliter},
		{Date: now, Kind: models.StockKindDamage, Quantity: decimal.NewFromInt(1), Unit: stock.Liter},
		{Date: now, Kind: models.StockKindCancel, Quantity: decimal.NewFromInt(250), Unit: stock.Milliliter},
	}
	for _, ev := range events {
		_, err := ledger.AppendEvent(theater.ID, product.ID, ev)
		require.NoError(t, err)
	}

	info, err := ledger.GetBalance(theater.ID, product.ID, now)
	require.NoError(t, err)
	// 20 - 0.5 - 1 + 0.25, all folded in litres
	assert.True(t, info.Balance.Equal(decimal.NewFromFloat(18.75)), info.Balance.String())
	assert.Equal(t, "L", info.StockUnit)
}

func TestLedgerLazyRolloverCarriesClosing(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Nachos", nil)

	jan := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	_, err := ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Date: jan, Kind: models.StockKindInvord,
		Quantity: decimal.NewFromInt(40), Unit: stock.Nos,
	})
	require.NoError(t, err)
	_, err = ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Date: jan, Kind: models.StockKindSales,
		Quantity: decimal.NewFromInt(15), Unit: stock.Nos,
	})
	require.NoError(t, err)

	// First read of March materializes it; February had no activity, so the
	// January closing carries straight through.
	march := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	info, err := ledger.GetBalance(theater.ID, product.ID, march)
	require.NoError(t, err)
	assert.Equal(t, 2026, info.Year)
	assert.Equal(t, 3, info.Month)
	assert.True(t, info.Opening.Equal(decimal.NewFromInt(25)), info.Opening.String())
	assert.True(t, info.Balance.Equal(decimal.NewFromInt(25)))
	assert.Empty(t, info.Entries)
}

func TestLedgerRolloverIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Samosa", nil)

	jan := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	_, err := ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Date: jan, Kind: models.StockKindDirect,
		Quantity: decimal.NewFromInt(12), Unit: stock.Nos,
	})
	require.NoError(t, err)

	require.NoError(t, ledger.Rollover(theater.ID, product.ID, 2026, 2))
	require.NoError(t, ledger.Rollover(theater.ID, product.ID, 2026, 2))

	var count int64
	db.Model(&models.StockMonth{}).
		Where("theater_id = ? AND product_id = ? AND year = 2026 AND month = 2", theater.ID, product.ID).
		Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestLedgerRejectsBadEvents(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Candy", nil)

	_, err := ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Kind: "opening", Quantity: decimal.NewFromInt(1), Unit: stock.Nos,
	})
	assert.Error(t, err)

	_, err = ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Kind: models.StockKindSales, Quantity: decimal.NewFromInt(-1), Unit: stock.Nos,
	})
	assert.Error(t, err)

	// Unit from another family never folds in.
	_, err = ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Kind: models.StockKindInvord, Quantity: decimal.NewFromInt(1), Unit: stock.Liter,
	})
	assert.Error(t, err)
}

func TestLedgerNegativeAdjustment(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Ice Cream", nil)

	seedStock(t, ledger, theater.ID, product.ID, 10, "Nos")

	balance, err := ledger.AppendEvent(theater.ID, product.ID, StockEventInput{
		Kind:     models.StockKindAdjustment,
		Quantity: decimal.NewFromInt(-4),
		Unit:     stock.Nos,
		Note:     "stocktake correction",
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(6)), balance.String())
}
