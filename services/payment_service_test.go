package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

const testGatewaySecret = "secret123"

// fakeGateway serves gateway order creation with predictable ids.
func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	seq := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seq++
		json.NewEncoder(w).Encode(RazorpayOrderResponse{
			ID:     "order_GW" + string(rune('A'+seq-1)),
			Status: "created",
		})
	}))
}

func newPaymentFixture(t *testing.T) (*PaymentService, *OrderService, *StockLedger, *models.Theater, *models.Product) {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewStockLedger(db)
	orders := NewOrderService(db, ledger)
	theater := seedTheater(t, db)
	product := seedProduct(t, db, theater.ID, "Popcorn", nil)
	seedStock(t, ledger, theater.ID, product.ID, 10, "Nos")

	server := fakeGateway(t)
	t.Cleanup(server.Close)

	gateway := NewRazorpayService(&RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: testGatewaySecret,
		BaseURL:   server.URL,
	})
	payments := NewPaymentService(db, orders, gateway)
	return payments, orders, ledger, &theater, &product
}

func placeGatewayOrder(t *testing.T, orders *OrderService, theaterID uint, productID uint, fingerprint string) *models.Order {
	t.Helper()
	result, err := orders.Create(CreateOrderRequest{
		TheaterID:     theaterID,
		Source:        models.SourceKiosk,
		Items:         []OrderItemRequest{{ProductID: &productID, Quantity: 2}},
		Fingerprint:   fingerprint,
		PaymentMethod: models.MethodRazorpay,
	})
	require.NoError(t, err)
	return result.Order
}

func TestCreateIntentIdempotent(t *testing.T) {
	payments, orders, _, theater, product := newPaymentFixture(t)
	order := placeGatewayOrder(t, orders, theater.ID, product.ID, "fp-intent")

	first, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusIntentCreated, first.Status)
	require.NotNil(t, first.ExpiresAt)

	second, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
}

func TestCreateIntentRejectsCashOrder(t *testing.T) {
	payments, orders, ledger, theater, product := newPaymentFixture(t)
	_ = ledger

	result, err := orders.Create(CreateOrderRequest{
		TheaterID:     theater.ID,
		Source:        models.SourceOnlinePOS,
		Items:         []OrderItemRequest{{ProductID: &product.ID, Quantity: 1}},
		Fingerprint:   "fp-cash-intent",
		PaymentMethod: models.MethodCash,
	})
	require.NoError(t, err)

	_, err = payments.CreateIntent(theater.ID, result.Order.ID)
	require.Error(t, err)
	assert.Equal(t, utils.KindConflict, utils.KindOf(err))
}

func TestVerifyHappyPath(t *testing.T) {
	payments, orders, ledger, theater, product := newPaymentFixture(t)
	order := placeGatewayOrder(t, orders, theater.ID, product.ID, "fp-verify")

	intent, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)

	sig := signPayload(testGatewaySecret, intent.GatewayOrderID, "pay_OK")
	verified, err := payments.Verify(VerifyRequest{
		RazorpayOrderID:   intent.GatewayOrderID,
		RazorpayPaymentID: "pay_OK",
		RazorpaySignature: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, verified.Status)

	// Re-verification of the same pair is a cached success.
	again, err := payments.Verify(VerifyRequest{
		RazorpayOrderID:   intent.GatewayOrderID,
		RazorpayPaymentID: "pay_OK",
		RazorpaySignature: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, verified.ID, again.ID)

	// One drain, one sales decrement.
	drainOutbox(t, payments.DB, ledger, orders)
	info, err := ledger.GetBalance(theater.ID, product.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "8", info.Balance.String())
}

func TestVerifyTamperedSignature(t *testing.T) {
	payments, orders, ledger, theater, product := newPaymentFixture(t)
	order := placeGatewayOrder(t, orders, theater.ID, product.ID, "fp-tamper")

	intent, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)

	_, err = payments.Verify(VerifyRequest{
		RazorpayOrderID:   intent.GatewayOrderID,
		RazorpayPaymentID: "pay_BAD",
		RazorpaySignature: "deadbeef",
	})
	require.Error(t, err)
	assert.Equal(t, utils.KindPaymentVerificationFailed, utils.KindOf(err))

	// Order stays pending_payment and stock is untouched.
	reloaded, err := orders.Get(theater.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, reloaded.Status)

	drainOutbox(t, payments.DB, ledger, orders)
	info, err := ledger.GetBalance(theater.ID, product.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "10", info.Balance.String())
}

func TestVerifyExpiredIntent(t *testing.T) {
	payments, orders, _, theater, product := newPaymentFixture(t)
	order := placeGatewayOrder(t, orders, theater.ID, product.ID, "fp-expired")

	intent, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, payments.DB.Model(intent).Update("expires_at", past).Error)

	sig := signPayload(testGatewaySecret, intent.GatewayOrderID, "pay_LATE")
	_, err = payments.Verify(VerifyRequest{
		RazorpayOrderID:   intent.GatewayOrderID,
		RazorpayPaymentID: "pay_LATE",
		RazorpaySignature: sig,
	})
	require.Error(t, err)
	assert.Equal(t, utils.KindPaymentExpired, utils.KindOf(err))
}

func TestSweepExpiredAutoCancels(t *testing.T) {
	payments, orders, _, theater, product := newPaymentFixture(t)
	order := placeGatewayOrder(t, orders, theater.ID, product.ID, "fp-sweep")

	intent, err := payments.CreateIntent(theater.ID, order.ID)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, payments.DB.Model(intent).Update("expires_at", past).Error)

	payments.SweepExpired()

	var swept models.Payment
	require.NoError(t, payments.DB.First(&swept, intent.ID).Error)
	assert.Equal(t, models.PaymentStatusExpired, swept.Status)

	reloaded, err := orders.Get(theater.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, reloaded.Status)
}

func TestChannelConfigKioskHasNoCash(t *testing.T) {
	payments, _, _, _, _ := newPaymentFixture(t)

	cfg, err := payments.ChannelConfig(models.SourceKiosk)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Methods, models.MethodCash)
	assert.Contains(t, cfg.Methods, models.MethodUPI)
	assert.Equal(t, "rzp_test_key", cfg.GatewayKeyID)

	cfg, err = payments.ChannelConfig(models.SourceOfflinePOS)
	require.NoError(t, err)
	assert.Equal(t, []string{models.MethodCash, models.MethodCard}, cfg.Methods)

	_, err = payments.ChannelConfig("drive-in")
	assert.Error(t, err)
}
