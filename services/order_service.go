package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

// lockStripes serializes create/confirm per product key. Stripes are taken in
// ascending index order, so overlapping orders cannot deadlock.
const lockStripes = 64

// OrderService drives the order lifecycle:
// draft -> pending_payment -> paid -> completed, with cancelled/refunded as
// terminal branches and sync_failed as a quarantine state.
type OrderService struct {
	DB     *gorm.DB
	Ledger *StockLedger

	locks [lockStripes]sync.Mutex
}

func NewOrderService(db *gorm.DB, ledger *StockLedger) *OrderService {
	return &OrderService{DB: db, Ledger: ledger}
}

type OrderItemRequest struct {
	ProductID    *uint `json:"product_id,omitempty"`
	ComboOfferID *uint `json:"combo_offer_id,omitempty"`
	Quantity     int   `json:"quantity"`
}

type CreateOrderRequest struct {
	TheaterID     uint               `json:"theater_id"`
	Source        string             `json:"source"`
	CustomerName  string             `json:"customer_name"`
	Items         []OrderItemRequest `json:"items"`
	Notes         string             `json:"notes"`
	Fingerprint   string             `json:"fingerprint"`
	PaymentMethod string             `json:"payment_method"`
	ClientTotal   decimal.Decimal    `json:"client_total"`

	// OfflineQueued waives the totals cross-check: the payload was frozen on
	// the device with the catalog it saw, which may have drifted since.
	OfflineQueued bool `json:"offline_queued"`
}

type CreateOrderResult struct {
	Order    *models.Order
	Existing bool
}

// AcceptedMethods returns the payment methods a channel may offer.
// The kiosk never handles cash.
func AcceptedMethods(source string) []string {
	switch source {
	case models.SourceOnlinePOS:
		return []string{models.MethodCash, models.MethodCard, models.MethodUPI, models.MethodRazorpay}
	case models.SourceOfflinePOS:
		return []string{models.MethodCash, models.MethodCard}
	case models.SourceKiosk:
		return []string{models.MethodCard, models.MethodUPI, models.MethodRazorpay}
	default:
		return nil
	}
}

// gatewayMethod reports whether the method requires a payment intent; cash and
// terminal card settle at the counter and go straight to paid.
func gatewayMethod(method string) bool {
	return method == models.MethodUPI || method == models.MethodRazorpay
}

// line carries everything resolved for one requested item before persisting.
type line struct {
	item       models.OrderItem
	components []models.OrderItemComponent
}

// Create validates the payload, freezes pricing and stock consumption per
// line, checks stock sufficiency under the per-product locks and persists the
// order. A replayed fingerprint returns the already-created order.
func (s *OrderService) Create(req CreateOrderRequest) (*CreateOrderResult, error) {
	if existing, err := s.findByFingerprint(req.Fingerprint); err != nil {
		return nil, err
	} else if existing != nil {
		return &CreateOrderResult{Order: existing, Existing: true}, nil
	}

	lines, required, err := s.resolveLines(req)
	if err != nil {
		return nil, err
	}

	totals := computeTotals(lines)
	if !req.OfflineQueued && !req.ClientTotal.IsZero() && !utils.MoneyEqual(totals.grand, req.ClientTotal) {
		return nil, utils.NewAppError(utils.KindTotalMismatch,
			fmt.Sprintf("server total %s does not match client total %s", totals.grand, req.ClientTotal))
	}

	unlock := s.lockProducts(required)
	defer unlock()

	if err := s.checkSufficiency(req.TheaterID, required); err != nil {
		return nil, err
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		customerName = req.Source
	}

	now := time.Now()
	order := models.Order{
		TheaterID:      req.TheaterID,
		OrderNumber:    newOrderNumber(req.TheaterID),
		Source:         req.Source,
		CustomerName:   customerName,
		Status:         models.OrderStatusPendingPayment,
		PaymentMethod:  req.PaymentMethod,
		SubTotal:       totals.subTotal,
		DiscountAmount: totals.discount,
		CGSTAmount:     totals.cgst,
		SGSTAmount:     totals.sgst,
		TaxAmount:      totals.tax,
		GrandTotal:     totals.grand,
		Notes:          req.Notes,
		Fingerprint:    req.Fingerprint,
	}

	directToPaid := !gatewayMethod(req.PaymentMethod)
	if directToPaid {
		order.Status = models.OrderStatusPaid
		order.PlacedAt = &now
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].item.OrderID = order.ID
			if err := tx.Create(&lines[i].item).Error; err != nil {
				return err
			}
			for j := range lines[i].components {
				lines[i].components[j].OrderItemID = lines[i].item.ID
			}
			if len(lines[i].components) > 0 {
				if err := tx.Create(&lines[i].components).Error; err != nil {
					return err
				}
			}
		}

		if directToPaid {
			payment := models.Payment{
				OrderID:    order.ID,
				Method:     req.PaymentMethod,
				Status:     models.PaymentStatusVerified,
				Amount:     totals.grand,
				VerifiedAt: &now,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
			return s.enqueueStockApply(tx, &order, lines, models.StockKindSales)
		}
		return nil
	})
	if err != nil {
		// A concurrent replay may have won the fingerprint race.
		if existing, ferr := s.findByFingerprint(req.Fingerprint); ferr == nil && existing != nil {
			return &CreateOrderResult{Order: existing, Existing: true}, nil
		}
		return nil, err
	}

	loaded, err := s.Get(order.TheaterID, order.ID)
	if err != nil {
		return nil, err
	}

	realtime.PublishOrderCreated(order.TheaterID, loaded)
	if directToPaid {
		realtime.PublishOrderPaid(order.TheaterID, loaded)
	}
	utils.InfoLogger.Printf("order %s created (status=%s, source=%s, fingerprint=%s)",
		order.OrderNumber, loaded.Status, order.Source, order.Fingerprint)
	return &CreateOrderResult{Order: loaded}, nil
}

// Get loads an order with its items scoped to a theater.
func (s *OrderService) Get(theaterID, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.DB.Preload("Items").Preload("Items.Components").Preload("Payment").
		Where("theater_id = ?", theaterID).
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.KindValidation, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// ConfirmPayment flips pending_payment to paid and records the sales stock
// apply markers in the same transaction. The ledger writes themselves happen
// in the outbox worker; a paid order with unflushed markers is authoritative
// for totals while balance queries keep using the committed ledger.
//
// Sufficiency is re-checked here under the product locks: a gateway order
// holds no reservation while pending, so concurrent confirms over overlapping
// products must not both drain the same balance.
func (s *OrderService) ConfirmPayment(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.DB.Preload("Items").Preload("Items.Components").
		First(&order, orderID).Error; err != nil {
		return nil, err
	}

	lines := make([]line, len(order.Items))
	required := make(map[uint]decimal.Decimal)
	for i, item := range order.Items {
		lines[i] = line{item: item, components: item.Components}
		for _, comp := range item.Components {
			total := comp.PerUnitQty.Mul(decimal.NewFromInt(int64(item.Quantity)))
			required[comp.ProductID] = required[comp.ProductID].Add(total)
		}
	}

	unlock := s.lockProducts(required)
	defer unlock()

	// Re-read the status under the locks; a rival confirm may have won while
	// this one waited on the stripes.
	if err := s.DB.First(&order, orderID).Error; err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusPaid {
		return &order, nil // already confirmed; idempotent
	}
	if order.Status != models.OrderStatusPendingPayment {
		return nil, utils.NewAppError(utils.KindConflict,
			fmt.Sprintf("order %d is %s, not pending_payment", orderID, order.Status))
	}
	if err := s.checkSufficiency(order.TheaterID, required); err != nil {
		return nil, err
	}

	now := time.Now()
	order.Status = models.OrderStatusPaid
	order.PlacedAt = &now
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		return s.enqueueStockApply(tx, &order, lines, models.StockKindSales)
	})
	if err != nil {
		return nil, err
	}

	realtime.PublishOrderPaid(order.TheaterID, &order)
	utils.InfoLogger.Printf("order %s paid (fingerprint=%s)", order.OrderNumber, order.Fingerprint)
	return &order, nil
}

// MarkCompleted records the operator "served" action.
func (s *OrderService) MarkCompleted(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.DB.First(&order, orderID).Error; err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPaid {
		return nil, utils.NewAppError(utils.KindConflict, "order not in paid status")
	}
	order.Status = models.OrderStatusCompleted
	if err := s.DB.Save(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Cancel cancels an order. From pending_payment nothing was consumed, so
// nothing is restored. From paid/completed the caller must state the path
// (refund or admin override); cancel stock events restore each component.
func (s *OrderService) Cancel(orderID uint, reason, path string) (*models.Order, error) {
	var order models.Order

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").Preload("Items.Components").
			First(&order, orderID).Error; err != nil {
			return err
		}

		if order.Terminal() {
			return utils.NewAppError(utils.KindConflict,
				fmt.Sprintf("order %d is already closed (%s)", orderID, order.Status))
		}

		switch order.Status {
		case models.OrderStatusPendingPayment:
			// No ledger writes exist before paid; just close the order.
		case models.OrderStatusPaid, models.OrderStatusCompleted:
			if path != models.CancelPathRefund && path != models.CancelPathAdminOverride {
				return utils.NewAppError(utils.KindValidation,
					"cancelling a paid order requires refund or admin_override")
			}
			lines := make([]line, len(order.Items))
			for i, item := range order.Items {
				lines[i] = line{item: item, components: item.Components}
			}
			if err := s.enqueueStockApply(tx, &order, lines, models.StockKindCancel); err != nil {
				return err
			}
		default:
			return utils.NewAppError(utils.KindConflict,
				fmt.Sprintf("order %d cannot be cancelled from %s", orderID, order.Status))
		}

		order.Status = models.OrderStatusCancelled
		order.CancelReason = reason
		order.CancelPath = path
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}

	realtime.PublishOrderCancelled(order.TheaterID, &order)
	utils.InfoLogger.Printf("order %s cancelled (reason=%q, path=%s)", order.OrderNumber, reason, path)
	return &order, nil
}

// Refund records a refund against a paid or completed order.
func (s *OrderService) Refund(orderID uint, amount decimal.Decimal) (*models.Order, error) {
	var order models.Order
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			return err
		}
		if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusCompleted &&
			order.Status != models.OrderStatusCancelled {
			return utils.NewAppError(utils.KindConflict, "order not refundable from "+order.Status)
		}
		if amount.IsNegative() || amount.GreaterThan(order.GrandTotal) {
			return utils.NewAppError(utils.KindValidation, "refund amount out of range")
		}
		order.Status = models.OrderStatusRefunded
		order.RefundAmount = utils.RoundMoney(amount)
		if err := tx.Save(&order).Error; err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("order_id = ?", order.ID).
			Update("status", models.PaymentStatusRefunded).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Quarantine moves an order to sync_failed after a fatal persistence error.
func (s *OrderService) Quarantine(orderID uint, cause error) {
	utils.ErrorLogger.Printf("order %d quarantined: %v", orderID, cause)
	if err := s.DB.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", models.OrderStatusSyncFailed).Error; err != nil {
		utils.ErrorLogger.Printf("failed to quarantine order %d: %v", orderID, err)
	}
}

func (s *OrderService) findByFingerprint(fingerprint string) (*models.Order, error) {
	if fingerprint == "" {
		return nil, utils.NewAppError(utils.KindValidation, "fingerprint is required")
	}
	var order models.Order
	err := s.DB.Preload("Items").Preload("Payment").
		Where("fingerprint = ?", fingerprint).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// resolveLines validates the request and freezes pricing plus per-unit stock
// consumption for every line. The returned map aggregates total required
// consumption per product id (combo components included).
func (s *OrderService) resolveLines(req CreateOrderRequest) ([]line, map[uint]decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return nil, nil, utils.NewAppError(utils.KindValidation, "order must contain at least one item")
	}
	if req.Source != models.SourceOnlinePOS && req.Source != models.SourceOfflinePOS && req.Source != models.SourceKiosk {
		return nil, nil, utils.NewAppError(utils.KindValidation, fmt.Sprintf("unknown order source %q", req.Source))
	}

	accepted := false
	for _, m := range AcceptedMethods(req.Source) {
		if m == req.PaymentMethod {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, nil, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("payment method %q not accepted for %s", req.PaymentMethod, req.Source))
	}

	lines := make([]line, 0, len(req.Items))
	required := make(map[uint]decimal.Decimal)

	for idx, itemReq := range req.Items {
		if itemReq.Quantity < 1 {
			return nil, nil, utils.NewAppError(utils.KindValidation,
				fmt.Sprintf("item %d: quantity must be at least 1", idx))
		}
		if (itemReq.ProductID == nil) == (itemReq.ComboOfferID == nil) {
			return nil, nil, utils.NewAppError(utils.KindValidation,
				fmt.Sprintf("item %d: exactly one of product_id or combo_offer_id is required", idx))
		}

		var ln line
		var err error
		if itemReq.ProductID != nil {
			ln, err = s.resolveProductLine(req.TheaterID, idx, *itemReq.ProductID, itemReq.Quantity)
		} else {
			ln, err = s.resolveComboLine(req.TheaterID, idx, *itemReq.ComboOfferID, itemReq.Quantity)
		}
		if err != nil {
			return nil, nil, err
		}

		for _, comp := range ln.components {
			total := comp.PerUnitQty.Mul(decimal.NewFromInt(int64(itemReq.Quantity)))
			required[comp.ProductID] = required[comp.ProductID].Add(total)
		}
		lines = append(lines, ln)
	}
	return lines, required, nil
}

func (s *OrderService) resolveProductLine(theaterID uint, idx int, productID uint, qty int) (line, error) {
	var product models.Product
	err := s.DB.Where("theater_id = ?", theaterID).First(&product, productID).Error
	if err != nil {
		return line{}, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("item %d: product %d not found", idx, productID))
	}
	if !product.Orderable() {
		return line{}, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("item %d: product %q is not orderable", idx, product.Name))
	}

	unit, ok := stock.ParseUnit(product.StockUnit)
	if !ok {
		unit = stock.Nos
	}
	perUnit, err := stock.PerUnitConsumption(&product, unit)
	if err != nil {
		return line{}, utils.WrapAppError(utils.KindValidation,
			fmt.Sprintf("item %d: cannot resolve stock consumption", idx), err)
	}

	item := models.OrderItem{
		ItemIndex:          idx,
		ProductID:          &product.ID,
		Name:               product.Name,
		Quantity:           qty,
		UnitPrice:          product.EffectivePrice(),
		TaxRate:            product.TaxRate,
		GSTType:            product.GSTType,
		DiscountPercentage: product.DiscountPercentage,
		StockUnit:          string(unit),
		PerUnitConsumption: perUnit,
	}
	return line{
		item: item,
		components: []models.OrderItemComponent{{
			ProductID:  product.ID,
			PerUnitQty: perUnit,
			StockUnit:  string(unit),
		}},
	}, nil
}

func (s *OrderService) resolveComboLine(theaterID uint, idx int, comboID uint, qty int) (line, error) {
	var combo models.ComboOffer
	err := s.DB.Preload("Items").Preload("Items.Product").
		Where("theater_id = ?", theaterID).
		First(&combo, comboID).Error
	if err != nil {
		return line{}, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("item %d: combo %d not found", idx, comboID))
	}
	if !combo.Orderable() {
		return line{}, utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("item %d: combo %q is not orderable", idx, combo.Name))
	}
	for _, comp := range combo.Items {
		if !comp.Product.Orderable() {
			return line{}, utils.NewAppError(utils.KindValidation,
				fmt.Sprintf("item %d: combo component %q is not orderable", idx, comp.Product.Name))
		}
	}

	// Per-unit expansion: one combo's worth of each component.
	perCombo, err := stock.ComboConsumption(&combo, 1)
	if err != nil {
		return line{}, utils.WrapAppError(utils.KindValidation,
			fmt.Sprintf("item %d: cannot expand combo", idx), err)
	}

	components := make([]models.OrderItemComponent, 0, len(perCombo))
	for _, cc := range perCombo {
		components = append(components, models.OrderItemComponent{
			ProductID:  cc.ProductID,
			PerUnitQty: cc.Quantity,
			StockUnit:  string(cc.Unit),
		})
	}

	item := models.OrderItem{
		ItemIndex:          idx,
		ComboOfferID:       &combo.ID,
		Name:               combo.Name,
		Quantity:           qty,
		UnitPrice:          combo.OfferPrice,
		TaxRate:            combo.TaxRate,
		GSTType:            combo.GSTType,
		DiscountPercentage: combo.DiscountPercentage,
	}
	return line{item: item, components: components}, nil
}

// lockProducts takes the lock stripes covering every affected product, in
// ascending stripe order, and returns the matching unlock.
func (s *OrderService) lockProducts(required map[uint]decimal.Decimal) func() {
	stripes := make(map[int]struct{})
	for productID := range required {
		stripes[int(productID)%lockStripes] = struct{}{}
	}
	order := make([]int, 0, len(stripes))
	for idx := range stripes {
		order = append(order, idx)
	}
	sort.Ints(order)

	for _, idx := range order {
		s.locks[idx].Lock()
	}
	return func() {
		for i := len(order) - 1; i >= 0; i-- {
			s.locks[order[i]].Unlock()
		}
	}
}

// checkSufficiency rejects the order when any affected product's effective
// balance (committed ledger minus unflushed sales markers) cannot cover the
// aggregated consumption.
func (s *OrderService) checkSufficiency(theaterID uint, required map[uint]decimal.Decimal) error {
	now := time.Now()
	for productID, needed := range required {
		info, err := s.Ledger.GetBalance(theaterID, productID, now)
		if err != nil {
			return err
		}

		pending, err := s.pendingApplyTotal(theaterID, productID)
		if err != nil {
			return err
		}

		available := info.Balance.Sub(pending)
		if available.LessThan(needed) {
			return utils.NewAppError(utils.KindInsufficientStock,
				fmt.Sprintf("product %d: need %s %s, have %s", productID, needed, info.StockUnit, available))
		}
	}
	return nil
}

// pendingApplyTotal sums unprocessed sales markers for a product; those
// quantities are already committed to leave stock even though the ledger has
// not folded them yet.
func (s *OrderService) pendingApplyTotal(theaterID, productID uint) (decimal.Decimal, error) {
	var rows []models.StockOutbox
	err := s.DB.Where("theater_id = ? AND product_id = ? AND kind = ? AND processed = ?",
		theaterID, productID, models.StockKindSales, false).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Quantity)
	}
	return total, nil
}

// enqueueStockApply writes one outbox marker per (item, component) inside the
// caller's transaction. The unique (order, item, kind, product) index turns a
// double confirm into a constraint error instead of a double decrement.
func (s *OrderService) enqueueStockApply(tx *gorm.DB, order *models.Order, lines []line, kind string) error {
	for _, ln := range lines {
		for _, comp := range ln.components {
			marker := models.StockOutbox{
				TheaterID: order.TheaterID,
				OrderID:   order.ID,
				ItemIndex: ln.item.ItemIndex,
				Kind:      kind,
				ProductID: comp.ProductID,
				Quantity:  comp.PerUnitQty.Mul(decimal.NewFromInt(int64(ln.item.Quantity))),
				StockUnit: comp.StockUnit,
			}
			if err := tx.Create(&marker).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func newOrderNumber(theaterID uint) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:6]
	return fmt.Sprintf("T%d-%s-%s", theaterID, time.Now().Format("060102"), suffix)
}
