package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/services"
)

func orderBody(productID uint, fingerprint string) gin.H {
	return gin.H{
		"source":         models.SourceOnlinePOS,
		"payment_method": models.MethodCash,
		"fingerprint":    fingerprint,
		"items":          []gin.H{{"product_id": productID, "quantity": 2}},
		"client_total":   "210",
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	db := setupTestDB(t)
	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn")
	seedStock(t, ledger, theater.ID, product.ID, 10)

	oc := NewOrderController(db, orders)
	r := gin.New()
	r.POST("/orders/theater", authStub(theater.ID, "staff"), oc.CreateOrder)

	w := doJSON(t, r, http.MethodPost, "/orders/theater", orderBody(product.ID, "fp-http-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.True(t, resp.Status)
	assert.Equal(t, "Order created", resp.Message)

	// The same fingerprint replays as 200 with the original order.
	w = doJSON(t, r, http.MethodPost, "/orders/theater", orderBody(product.ID, "fp-http-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeResponse(t, w)
	assert.Equal(t, "Order already placed", resp.Message)

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCreateOrderInsufficientStockStatus(t *testing.T) {
	db := setupTestDB(t)
	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn")
	seedStock(t, ledger, theater.ID, product.ID, 1)

	oc := NewOrderController(db, orders)
	r := gin.New()
	r.POST("/orders/theater", authStub(theater.ID, "staff"), oc.CreateOrder)

	w := doJSON(t, r, http.MethodPost, "/orders/theater", orderBody(product.ID, "fp-http-2"))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	assert.False(t, resp.Status)
	assert.Equal(t, "insufficient_stock", resp.Kind)
}

func TestSyncOrdersBatchIsIndependent(t *testing.T) {
	db := setupTestDB(t)
	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn")
	seedStock(t, ledger, theater.ID, product.ID, 3)

	oc := NewOrderController(db, orders)
	r := gin.New()
	r.POST("/orders/theater-sync", authStub(theater.ID, "staff"), oc.SyncOrders)

	batch := gin.H{"orders": []gin.H{
		{
			"source": models.SourceOfflinePOS, "payment_method": models.MethodCash,
			"fingerprint": "fp-sync-1",
			"items":       []gin.H{{"product_id": product.ID, "quantity": 2}},
		},
		{
			// More than the remaining stock; this one fails, the first stands.
			"source": models.SourceOfflinePOS, "payment_method": models.MethodCash,
			"fingerprint": "fp-sync-2",
			"items":       []gin.H{{"product_id": product.ID, "quantity": 5}},
		},
	}}

	w := doJSON(t, r, http.MethodPost, "/orders/theater-sync", batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data []struct {
			Fingerprint string `json:"fingerprint"`
			Existing    bool   `json:"existing"`
			Error       string `json:"error"`
			Kind        string `json:"kind"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Empty(t, resp.Data[0].Error)
	assert.Equal(t, "insufficient_stock", resp.Data[1].Kind)

	// Resubmitting the whole batch is safe: the accepted order replays.
	w = doJSON(t, r, http.MethodPost, "/orders/theater-sync", batch)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data[0].Existing)

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCancelAdminOverrideRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn")
	seedStock(t, ledger, theater.ID, product.ID, 10)

	result, err := orders.Create(services.CreateOrderRequest{
		TheaterID:     theater.ID,
		Source:        models.SourceOnlinePOS,
		Items:         []services.OrderItemRequest{{ProductID: &product.ID, Quantity: 1}},
		Fingerprint:   "fp-cancel-http",
		PaymentMethod: models.MethodCash,
	})
	require.NoError(t, err)
	orderID := result.Order.ID

	oc := NewOrderController(db, orders)
	path := fmt.Sprintf("/orders/theater/%d/%d/cancel", theater.ID, orderID)
	body := gin.H{"reason": "till shortage", "path": models.CancelPathAdminOverride}

	staff := gin.New()
	staff.POST("/orders/theater/:theater_id/:order_id/cancel", authStub(theater.ID, "staff"), oc.CancelOrder)
	w := doJSON(t, staff, http.MethodPost, path, body)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	admin := gin.New()
	admin.POST("/orders/theater/:theater_id/:order_id/cancel", authStub(theater.ID, "admin"), oc.CancelOrder)
	w = doJSON(t, admin, http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	reloaded, err := orders.Get(theater.ID, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, reloaded.Status)
}

func TestGetOrdersFiltersByStatus(t *testing.T) {
	db := setupTestDB(t)
	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn")
	seedStock(t, ledger, theater.ID, product.ID, 10)

	for _, fp := range []string{"fp-list-1", "fp-list-2"} {
		_, err := orders.Create(services.CreateOrderRequest{
			TheaterID:     theater.ID,
			Source:        models.SourceOnlinePOS,
			Items:         []services.OrderItemRequest{{ProductID: &product.ID, Quantity: 1}},
			Fingerprint:   fp,
			PaymentMethod: models.MethodCash,
		})
		require.NoError(t, err)
	}

	oc := NewOrderController(db, orders)
	r := gin.New()
	r.GET("/orders/theater", authStub(theater.ID, "staff"), oc.GetOrders)

	w := doJSON(t, r, http.MethodGet, "/orders/theater?status=paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)

	w = doJSON(t, r, http.MethodGet, "/orders/theater?status=cancelled", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}
