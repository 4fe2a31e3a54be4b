package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

var ctrlDBSeq int64

func init() {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()
	utils.InitJWT("controller-test-secret")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ctrltest%d?mode=memory&cache=shared", atomic.AddInt64(&ctrlDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Theater{},
		&models.User{},
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

// authStub plays the role of the auth middleware: the token claims become
// context values.
func authStub(theaterID uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", uint(1))
		c.Set("theater_id", theaterID)
		c.Set("role", role)
		c.Next()
	}
}

func seedTheater(t *testing.T, db *gorm.DB) models.Theater {
	t.Helper()
	theater := models.Theater{Name: "Galaxy Multiplex", Code: fmt.Sprintf("GX%d", atomic.AddInt64(&ctrlDBSeq, 1))}
	require.NoError(t, db.Create(&theater).Error)
	return theater
}

func seedProduct(t *testing.T, db *gorm.DB, theaterID uint, name string) models.Product {
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
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedStock(t *testing.T, ledger *services.StockLedger, theaterID, productID uint, qty int64) {
	t.Helper()
	_, err := ledger.AppendEvent(theaterID, productID, services.StockEventInput{
		Date:     time.Now(),
		Kind:     models.StockKindInvord,
		Quantity: decimal.NewFromInt(qty),
		Unit:     stock.Nos,
		Note:     "seed",
	})
	require.NoError(t, err)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) utils.JSONResponse {
	t.Helper()
	var resp utils.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
