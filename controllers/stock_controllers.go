package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/stock"
	"github.com/yeremiapane/concessions-app/utils"
)

type StockController struct {
	DB     *gorm.DB
	Ledger *services.StockLedger
}

func NewStockController(db *gorm.DB, ledger *services.StockLedger) *StockController {
	return &StockController{DB: db, Ledger: ledger}
}

// GetBalance returns the ledger page for a product in the month containing
// the as_of date (default: now).
func (sc *StockController) GetBalance(c *gin.Context) {
	theaterID, _ := strconv.ParseUint(c.Param("theater_id"), 10, 32)
	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid product_id"))
		return
	}

	asOf := time.Now()
	if rawYear := c.Query("year"); rawYear != "" {
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid year"))
			return
		}
		month, err := strconv.Atoi(c.DefaultQuery("month", "1"))
		if err != nil || month < 1 || month > 12 {
			utils.RespondError(c, http.StatusBadRequest, errors.New("month must be between 1 and 12"))
			return
		}
		asOf = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	}

	info, err := sc.Ledger.GetBalance(uint(theaterID), uint(productID), asOf)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Stock balance", info)
}

type stockEventInput struct {
	ProductID uint   `json:"product_id" binding:"required"`
	Date      string `json:"date"`
	Kind      string `json:"kind" binding:"required"`
	Quantity  string `json:"quantity" binding:"required"`
	Unit      string `json:"unit" binding:"required"`
	Note      string `json:"note"`
}

// AppendEvent records a manual stock event: receipts (invord, direct, addon),
// write-offs (expired, damage) and signed adjustments. Sales and cancel
// entries only ever come from the order pipeline.
func (sc *StockController) AppendEvent(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var input stockEventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if input.Kind == models.StockKindSales || input.Kind == models.StockKindCancel {
		utils.RespondAppError(c, utils.NewAppError(utils.KindValidation,
			"sales and cancel entries are written by the order pipeline"))
		return
	}

	qty, err := utils.ParseMoney(input.Quantity)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid quantity"))
		return
	}
	unit, ok := stock.ParseUnit(input.Unit)
	if !ok {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("unknown unit %q", input.Unit))
		return
	}

	date := time.Now()
	if input.Date != "" {
		if date, err = time.Parse("2006-01-02", input.Date); err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
	}

	balance, err := sc.Ledger.AppendEvent(theaterID, input.ProductID, services.StockEventInput{
		Date:     date,
		Kind:     input.Kind,
		Quantity: qty,
		Unit:     unit,
		Note:     input.Note,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Stock event recorded", gin.H{
		"product_id": input.ProductID,
		"kind":       input.Kind,
		"balance":    balance.String(),
	})
}

// Rollover eagerly materializes the next month's ledger page.
func (sc *StockController) Rollover(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var input struct {
		ProductID uint `json:"product_id" binding:"required"`
		Year      int  `json:"year" binding:"required"`
		Month     int  `json:"month" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := sc.Ledger.Rollover(theaterID, input.ProductID, input.Year, input.Month); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Month materialized", gin.H{
		"product_id": input.ProductID,
		"year":       input.Year,
		"month":      input.Month,
	})
}

// ExportStock streams an xlsx workbook with one row per product: opening,
// signed movement totals by kind and closing for the requested month.
func (sc *StockController) ExportStock(c *gin.Context) {
	theaterID, _ := strconv.ParseUint(c.Param("theater_id"), 10, 32)

	now := time.Now()
	year, _ := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	month, _ := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	// A date picks the month containing it and wins over year/month.
	if rawDate := c.Query("date"); rawDate != "" {
		day, err := time.Parse("2006-01-02", rawDate)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		year, month = day.Year(), int(day.Month())
	}
	if month < 1 || month > 12 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("month must be between 1 and 12"))
		return
	}

	var months []models.StockMonth
	if err := sc.DB.Preload("Entries").Preload("Product").
		Where("theater_id = ? AND year = ? AND month = ?", theaterID, year, month).
		Find(&months).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Stock"
	f.SetSheetName("Sheet1", sheet)

	headers := []interface{}{"Product", "Unit", "Opening",
		"Invord", "Direct", "Addon", "Sales", "Cancel", "Expired", "Damage", "Adjustment",
		"Closing"}
	f.SetSheetRow(sheet, "A1", &headers)

	for i, sm := range months {
		byKind := map[string]float64{}
		closing := sm.OpeningBalance
		for _, e := range sm.Entries {
			qty, _ := e.NormalizedQty.Float64()
			byKind[e.Kind] += qty
			delta := e.NormalizedQty
			if models.EntrySign(e.Kind) < 0 {
				delta = delta.Neg()
			}
			closing = closing.Add(delta)
		}
		opening, _ := sm.OpeningBalance.Float64()
		closingF, _ := closing.Float64()
		row := []interface{}{
			sm.Product.Name, sm.StockUnit, opening,
			byKind[models.StockKindInvord], byKind[models.StockKindDirect],
			byKind[models.StockKindAddon], byKind[models.StockKindSales],
			byKind[models.StockKindCancel], byKind[models.StockKindExpired],
			byKind[models.StockKindDamage], byKind[models.StockKindAdjustment],
			closingF,
		}
		f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row)
	}

	filename := fmt.Sprintf("stock-%d-%04d-%02d.xlsx", theaterID, year, month)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(c.Writer); err != nil {
		utils.ErrorLogger.Printf("stock export write failed: %v", err)
	}
}

// SalesReport aggregates paid and completed orders over a date range. The
// range defaults to the whole requested month; startDate and endDate narrow it.
func (sc *StockController) SalesReport(c *gin.Context) {
	theaterID, _ := strconv.ParseUint(c.Param("theater_id"), 10, 32)

	now := time.Now()
	year, _ := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	month, _ := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if month < 1 || month > 12 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("month must be between 1 and 12"))
		return
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("startDate"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("startDate must be YYYY-MM-DD"))
			return
		}
		from = day
	}
	if raw := c.Query("endDate"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("endDate must be YYYY-MM-DD"))
			return
		}
		to = day.Add(24 * time.Hour)
	}

	var orders []models.Order
	if err := sc.DB.Preload("Items").
		Where("theater_id = ? AND status IN ? AND placed_at >= ? AND placed_at < ?",
			theaterID,
			[]string{models.OrderStatusPaid, models.OrderStatusCompleted},
			from, to).
		Find(&orders).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	gross := decimal.Zero
	tax := decimal.Zero
	bySource := map[string]int{}
	for _, o := range orders {
		gross = gross.Add(o.GrandTotal)
		tax = tax.Add(o.TaxAmount)
		bySource[o.Source]++
	}

	utils.RespondJSON(c, http.StatusOK, "Sales report", gin.H{
		"orders":    len(orders),
		"gross":     utils.RoundMoney(gross).String(),
		"tax":       utils.RoundMoney(tax).String(),
		"by_source": bySource,
	})
}
