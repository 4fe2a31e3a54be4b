package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

// OutboxWorker drains pending stock-apply markers into the ledger. A single
// worker processes markers in FIFO order, so ledger appends for one product
// never race each other.
type OutboxWorker struct {
	DB     *gorm.DB
	Ledger *StockLedger
	Orders *OrderService

	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

func NewOutboxWorker(db *gorm.DB, ledger *StockLedger, orders *OrderService) *OutboxWorker {
	return &OutboxWorker{
		DB:        db,
		Ledger:    ledger,
		Orders:    orders,
		interval:  2 * time.Second,
		batchSize: 100,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the drain loop.
func (w *OutboxWorker) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.DrainOnce()
			case <-w.stopChan:
				return
			}
		}
	}()
	utils.InfoLogger.Println("stock outbox worker started")
}

func (w *OutboxWorker) Stop() {
	close(w.stopChan)
}

// DrainOnce applies one batch of unprocessed markers. A marker that fails
// validation quarantines its order and is marked processed so it cannot wedge
// the queue; transient errors leave the marker for the next tick.
func (w *OutboxWorker) DrainOnce() int {
	var markers []models.StockOutbox
	err := w.DB.Where("processed = ?", false).
		Order("id asc").
		Limit(w.batchSize).
		Find(&markers).Error
	if err != nil {
		utils.ErrorLogger.Printf("outbox drain query failed: %v", err)
		return 0
	}

	applied := 0
	for _, marker := range markers {
		if err := w.apply(marker); err != nil {
			if utils.KindOf(err) == utils.KindTransient {
				utils.ErrorLogger.Printf("outbox marker %d deferred: %v", marker.ID, err)
				continue
			}
			w.Orders.Quarantine(marker.OrderID,
				fmt.Errorf("stock apply marker %d: %w", marker.ID, err))
			if merr := w.markProcessed(marker.ID); merr != nil {
				utils.ErrorLogger.Printf("failed to retire marker %d: %v", marker.ID, merr)
			}
			continue
		}
		applied++
	}
	return applied
}

func (w *OutboxWorker) apply(marker models.StockOutbox) error {
	unit, ok := stock.ParseUnit(marker.StockUnit)
	if !ok {
		return utils.NewAppError(utils.KindValidation,
			fmt.Sprintf("marker carries unknown unit %q", marker.StockUnit))
	}

	// A marker whose ledger entry landed but whose retire failed comes back
	// on the next tick; the existing entry makes the retry a no-op retire.
	applied, err := w.alreadyApplied(marker)
	if err != nil {
		return utils.WrapAppError(utils.KindTransient, "apply dedup check failed", err)
	}
	if applied {
		return w.markProcessed(marker.ID)
	}

	orderID := marker.OrderID
	itemIndex := marker.ItemIndex
	newBalance, err := w.Ledger.AppendEvent(marker.TheaterID, marker.ProductID, StockEventInput{
		Date:      marker.CreatedAt,
		Kind:      marker.Kind,
		Quantity:  marker.Quantity,
		Unit:      unit,
		Note:      fmt.Sprintf("order %d item %d", orderID, itemIndex),
		OrderID:   &orderID,
		ItemIndex: &itemIndex,
	})
	if err != nil {
		return err
	}

	if err := w.markProcessed(marker.ID); err != nil {
		return utils.WrapAppError(utils.KindTransient, "marker retire failed", err)
	}

	realtime.PublishStockDelta(marker.TheaterID, realtime.StockDelta{
		ProductID:  marker.ProductID,
		NewBalance: newBalance.String(),
		StockUnit:  marker.StockUnit,
	})
	return nil
}

// alreadyApplied reports whether a ledger entry for this marker's (order,
// item, kind) already exists in one of the product's months.
func (w *OutboxWorker) alreadyApplied(marker models.StockOutbox) (bool, error) {
	var count int64
	err := w.DB.Model(&models.StockEntry{}).
		Joins("JOIN stock_months ON stock_months.id = stock_entries.stock_month_id").
		Where("stock_months.product_id = ? AND stock_entries.order_id = ? AND stock_entries.item_index = ? AND stock_entries.kind = ?",
			marker.ProductID, marker.OrderID, marker.ItemIndex, marker.Kind).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (w *OutboxWorker) markProcessed(markerID uint) error {
	now := time.Now()
	return w.DB.Model(&models.StockOutbox{}).
		Where("id = ?", markerID).
		Updates(map[string]interface{}{"processed": true, "processed_at": now}).Error
}
