package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/utils"
)

type OrderController struct {
	DB     *gorm.DB
	Orders *services.OrderService
}

func NewOrderController(db *gorm.DB, orders *services.OrderService) *OrderController {
	return &OrderController{DB: db, Orders: orders}
}

// CreateOrder places an order. A replayed fingerprint returns the original
// order with 200 instead of 201 so devices can retry blind.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	req.TheaterID = theaterID

	result, err := oc.Orders.Create(req)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if result.Existing {
		utils.RespondJSON(c, http.StatusOK, "Order already placed", result.Order)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", result.Order)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	theaterID := c.GetUint("theater_id")
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}

	order, err := oc.Orders.Get(theaterID, uint(orderID))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// GetOrders lists a theater's orders, newest first, with optional status and
// source filters.
func (oc *OrderController) GetOrders(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	query := oc.DB.Preload("Items").Preload("Payment").
		Where("theater_id = ?", theaterID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if source := c.Query("source"); source != "" {
		query = query.Where("source = ?", source)
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var orders []models.Order
	if err := query.Order("id desc").Limit(limit).Find(&orders).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// CompleteOrder records the served hand-off.
func (oc *OrderController) CompleteOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}

	order, err := oc.Orders.MarkCompleted(uint(orderID))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order completed", order)
}

type cancelInput struct {
	Reason string `json:"reason" binding:"required"`
	Path   string `json:"path"`
}

// CancelOrder cancels an order. Cancelling a paid order needs a path of
// refund or admin_override and restores consumed stock.
func (oc *OrderController) CancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}

	var input cancelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if input.Path == models.CancelPathAdminOverride && c.GetString("role") != "admin" {
		utils.RespondAppError(c, utils.NewAppError(utils.KindAuth, "admin_override requires the admin role"))
		return
	}

	order, err := oc.Orders.Cancel(uint(orderID), input.Reason, input.Path)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

// RefundOrder records a refund amount against an order.
func (oc *OrderController) RefundOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("order_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid order_id"))
		return
	}

	var input struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	amount, err := utils.ParseMoney(input.Amount)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid amount"))
		return
	}

	order, err := oc.Orders.Refund(uint(orderID), amount)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order refunded", order)
}

// syncResult is the per-order outcome of an offline batch flush.
type syncResult struct {
	Fingerprint string        `json:"fingerprint"`
	Existing    bool          `json:"existing"`
	Order       *models.Order `json:"order,omitempty"`
	Error       string        `json:"error,omitempty"`
	Kind        string        `json:"kind,omitempty"`
}

// SyncOrders replays a batch of offline-queued orders in submission order.
// Each order succeeds or fails independently; fingerprints make the whole
// batch safe to resubmit.
func (oc *OrderController) SyncOrders(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var batch struct {
		Orders []services.CreateOrderRequest `json:"orders" binding:"required"`
	}
	if err := c.ShouldBindJSON(&batch); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	results := make([]syncResult, 0, len(batch.Orders))
	for _, req := range batch.Orders {
		req.TheaterID = theaterID
		req.OfflineQueued = true

		res := syncResult{Fingerprint: req.Fingerprint}
		created, err := oc.Orders.Create(req)
		if err != nil {
			res.Error = err.Error()
			res.Kind = string(utils.KindOf(err))
		} else {
			res.Existing = created.Existing
			res.Order = created.Order
		}
		results = append(results, res)
	}

	utils.RespondJSON(c, http.StatusOK, "Offline batch processed", results)
}
