package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

// StockLedger owns the per-(theater, product, year, month) ledger pages.
// Months materialize lazily: the first read or write touching a month creates
// it with opening = closing of the latest earlier month.
type StockLedger struct {
	DB *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger {
	return &StockLedger{DB: db}
}

// StockEventInput is one ledger append. Quantity must be non-negative for
// every kind except adjustment, where the sign rides on the quantity.
type StockEventInput struct {
	Date      time.Time
	Kind      string
	Quantity  decimal.Decimal
	Unit      stock.Unit
	Note      string
	OrderID   *uint
	ItemIndex *int
}

type BalanceInfo struct {
	StockUnit string               `json:"stock_unit"`
	Balance   decimal.Decimal      `json:"balance"`
	Opening   decimal.Decimal      `json:"opening"`
	Year      int                  `json:"year"`
	Month     int                  `json:"month"`
	Entries   []models.StockEntry  `json:"entries"`
}

// monthKey orders (year, month) pairs.
func monthKey(year, month int) int {
	return year*100 + month
}

// ensureMonth finds or materializes the ledger page for (theater, product,
// year, month) inside tx. Idempotent by the unique month index.
func (sl *StockLedger) ensureMonth(tx *gorm.DB, theaterID, productID uint, year, month int) (*models.StockMonth, error) {
	var sm models.StockMonth
	err := tx.Where("theater_id = ? AND product_id = ? AND year = ? AND month = ?",
		theaterID, productID, year, month).First(&sm).Error
	if err == nil {
		return &sm, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var product models.Product
	if err := tx.First(&product, productID).Error; err != nil {
		return nil, fmt.Errorf("product %d not found: %w", productID, err)
	}

	// Opening balance carries forward from the latest earlier month; months
	// with zero activity in between change nothing, so skipping them is
	// equivalent to materializing each one.
	opening := decimal.Zero
	var prev models.StockMonth
	err = tx.Where("theater_id = ? AND product_id = ? AND (year*100 + month) < ?",
		theaterID, productID, monthKey(year, month)).
		Order("year desc, month desc").
		First(&prev).Error
	if err == nil {
		closing, cerr := sl.computeClosing(tx, &prev)
		if cerr != nil {
			return nil, cerr
		}
		opening = closing
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sm = models.StockMonth{
		TheaterID:      theaterID,
		ProductID:      productID,
		Year:           year,
		Month:          month,
		StockUnit:      product.StockUnit,
		OpeningBalance: opening,
		ClosingBalance: opening,
	}
	if err := tx.Create(&sm).Error; err != nil {
		// Lost a materialization race; the winner's row is what we want.
		var again models.StockMonth
		if ferr := tx.Where("theater_id = ? AND product_id = ? AND year = ? AND month = ?",
			theaterID, productID, year, month).First(&again).Error; ferr == nil {
			return &again, nil
		}
		return nil, err
	}
	return &sm, nil
}

// computeClosing folds a month's entries over its opening balance in
// (date asc, seq asc) order. This derived value is the source of truth; the
// stored ClosingBalance column is only a cache.
func (sl *StockLedger) computeClosing(tx *gorm.DB, sm *models.StockMonth) (decimal.Decimal, error) {
	var entries []models.StockEntry
	if err := tx.Where("stock_month_id = ?", sm.ID).
		Order("date asc, seq asc").
		Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}

	balance := sm.OpeningBalance
	for _, e := range entries {
		sign := models.EntrySign(e.Kind)
		if sign == 0 {
			return decimal.Zero, fmt.Errorf("unknown stock entry kind %q", e.Kind)
		}
		delta := e.NormalizedQty
		if sign < 0 {
			delta = delta.Neg()
		}
		balance = balance.Add(delta)
	}
	return balance, nil
}

// GetBalance returns the running balance of a product as of the month that
// contains asOf, repairing the cached closing balance when it drifted.
func (sl *StockLedger) GetBalance(theaterID, productID uint, asOf time.Time) (*BalanceInfo, error) {
	var info *BalanceInfo
	err := sl.DB.Transaction(func(tx *gorm.DB) error {
		sm, err := sl.ensureMonth(tx, theaterID, productID, asOf.Year(), int(asOf.Month()))
		if err != nil {
			return err
		}

		closing, err := sl.computeClosing(tx, sm)
		if err != nil {
			return err
		}
		if !closing.Equal(sm.ClosingBalance) {
			if err := tx.Model(sm).Update("closing_balance", closing).Error; err != nil {
				return err
			}
		}

		var entries []models.StockEntry
		if err := tx.Where("stock_month_id = ?", sm.ID).
			Order("date asc, seq asc").
			Find(&entries).Error; err != nil {
			return err
		}

		info = &BalanceInfo{
			StockUnit: sm.StockUnit,
			Balance:   closing,
			Opening:   sm.OpeningBalance,
			Year:      sm.Year,
			Month:     sm.Month,
			Entries:   entries,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// AppendEvent records one signed stock event and returns the new balance.
// The ledger itself never rejects a balance going negative; the stronger
// guard lives at the order boundary, so admin adjustments stay free to
// overdraw deliberately.
func (sl *StockLedger) AppendEvent(theaterID, productID uint, ev StockEventInput) (decimal.Decimal, error) {
	if models.EntrySign(ev.Kind) == 0 {
		return decimal.Zero, utils.NewAppError(utils.KindValidation, fmt.Sprintf("unknown stock event kind %q", ev.Kind))
	}
	if ev.Quantity.IsNegative() && ev.Kind != models.StockKindAdjustment {
		return decimal.Zero, utils.NewAppError(utils.KindValidation, "stock event quantity must not be negative")
	}
	if !ev.Unit.Valid() {
		return decimal.Zero, utils.NewAppError(utils.KindValidation, fmt.Sprintf("unknown stock unit %q", ev.Unit))
	}
	if ev.Date.IsZero() {
		ev.Date = time.Now()
	}

	var newBalance decimal.Decimal
	err := sl.DB.Transaction(func(tx *gorm.DB) error {
		sm, err := sl.ensureMonth(tx, theaterID, productID, ev.Date.Year(), int(ev.Date.Month()))
		if err != nil {
			return err
		}

		monthUnit, ok := stock.ParseUnit(sm.StockUnit)
		if !ok {
			return fmt.Errorf("stock month %d carries unknown unit %q", sm.ID, sm.StockUnit)
		}
		normalized, err := stock.Normalize(ev.Quantity, ev.Unit, monthUnit)
		if err != nil {
			return utils.WrapAppError(utils.KindValidation, "stock event unit mismatch", err)
		}

		var maxSeq int
		row := tx.Model(&models.StockEntry{}).
			Where("stock_month_id = ?", sm.ID).
			Select("COALESCE(MAX(seq), 0)").Row()
		if err := row.Scan(&maxSeq); err != nil {
			return err
		}

		entry := models.StockEntry{
			StockMonthID:  sm.ID,
			Date:          ev.Date,
			Seq:           maxSeq + 1,
			Kind:          ev.Kind,
			Quantity:      ev.Quantity,
			Unit:          string(ev.Unit),
			NormalizedQty: normalized,
			Note:          ev.Note,
			OrderID:       ev.OrderID,
			ItemIndex:     ev.ItemIndex,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		closing, err := sl.computeClosing(tx, sm)
		if err != nil {
			return err
		}
		if err := tx.Model(sm).Update("closing_balance", closing).Error; err != nil {
			return err
		}
		newBalance = closing
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Rollover materializes the target month with opening equal to the source
// month's closing. Idempotent by the unique month key; lazy reads already do
// this, Rollover only exists for operators who want it eager.
func (sl *StockLedger) Rollover(theaterID, productID uint, toYear, toMonth int) error {
	if toMonth < 1 || toMonth > 12 {
		return utils.NewAppError(utils.KindValidation, "month must be between 1 and 12")
	}
	return sl.DB.Transaction(func(tx *gorm.DB) error {
		_, err := sl.ensureMonth(tx, theaterID, productID, toYear, toMonth)
		return err
	})
}
