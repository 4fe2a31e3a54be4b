package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

var testDBSeq int64

func init() {
	utils.InitLogger()
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Theater{},
		&models.Category{},
		&models.Product{},
		&models.ComboOffer{},
		&models.ComboOfferItem{},
		&models.StockMonth{},
		&models.StockEntry{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemComponent{},
		&models.Payment{},
		&models.StockOutbox{},
	))
	return db
}

func seedTheater(t *testing.T, db *gorm.DB) models.Theater {
	t.Helper()
	theater := models.Theater{Name: "Galaxy Multiplex", Code: fmt.Sprintf("GX%d", atomic.AddInt64(&testDBSeq, 1))}
	require.NoError(t, db.Create(&theater).Error)
	return theater
}

func seedProduct(t *testing.T, db *gorm.DB, theaterID uint, name string, override func(*models.Product)) models.Product {
	t.Helper()
	category := models.Category{TheaterID: theaterID, Name: "Snacks"}
	require.NoError(t, db.Create(&category).Error)

	p := models.Product{
		TheaterID:    theaterID,
		CategoryID:   category.ID,
		Name:         name,
		StockUnit:    "Nos",
		PackQuantity: "1 Nos",
		NoQty:        1,
		BasePrice:    decimal.NewFromInt(100),
		GSTType:      models.GSTExclusive,
		TaxRate:      decimal.NewFromInt(5),
		IsActive:     true,
		IsAvailable:  true,
	}
	if override != nil {
		override(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// seedStock gives the product an opening receipt in the current month.
func seedStock(t *testing.T, ledger *StockLedger, theaterID, productID uint, qty int64, unit string) {
	t.Helper()
	u, ok := stock.ParseUnit(unit)
	require.True(t, ok)
	_, err := ledger.AppendEvent(theaterID, productID, StockEventInput{
		Date:     time.Now(),
		Kind:     models.StockKindInvord,
		Quantity: decimal.NewFromInt(qty),
		Unit:     u,
		Note:     "seed",
	})
	require.NoError(t, err)
}

// drainOutbox applies all pending stock markers synchronously.
func drainOutbox(t *testing.T, db *gorm.DB, ledger *StockLedger, orders *OrderService) {
	t.Helper()
	worker := NewOutboxWorker(db, ledger, orders)
	for worker.DrainOnce() > 0 {
	}
}
