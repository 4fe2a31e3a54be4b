package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/cache"
	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/utils"
)

type ProductController struct {
	DB     *gorm.DB
	Ledger *services.StockLedger
	Cache  *cache.Cache
}

func NewProductController(db *gorm.DB, ledger *services.StockLedger, c *cache.Cache) *ProductController {
	return &ProductController{DB: db, Ledger: ledger, Cache: c}
}

// productView is the catalog row a POS or kiosk renders: the product plus its
// resolved image and current ledger balance.
type productView struct {
	models.Product
	Image   *string `json:"image"`
	Balance string  `json:"balance"`
}

// GetTheaterProducts lists orderable products for a theater with optional
// category, kiosk type and name filters. Balances come from the stock ledger.
func (pc *ProductController) GetTheaterProducts(c *gin.Context) {
	theaterID, err := strconv.ParseUint(c.Param("theater_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid theater_id"))
		return
	}

	cacheKey := fmt.Sprintf("products:%d:%s:%s:%s",
		theaterID, c.Query("category"), c.Query("kiosk_type"), c.Query("q"))
	var views []productView
	if pc.Cache.Get(c.Request.Context(), cacheKey, &views) {
		utils.RespondJSON(c, http.StatusOK, "List of products", views)
		return
	}

	query := pc.DB.Preload("Category").Preload("KioskType").
		Where("theater_id = ? AND is_active = ?", theaterID, true)
	if cat := c.Query("category"); cat != "" {
		query = query.Where("category_id = ?", cat)
	}
	if kt := c.Query("kiosk_type"); kt != "" {
		query = query.Where("kiosk_type_id = ?", kt)
	}
	if q := c.Query("q"); q != "" {
		query = query.Where("name LIKE ?", "%"+q+"%")
	}

	var products []models.Product
	if err := query.Order("name asc").Find(&products).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	now := time.Now()
	views = make([]productView, 0, len(products))
	for _, p := range products {
		view := productView{Product: p, Image: p.ResolveImage(), Balance: "0"}
		if info, err := pc.Ledger.GetBalance(uint(theaterID), p.ID, now); err == nil {
			view.Balance = info.Balance.String()
		}
		views = append(views, view)
	}

	pc.Cache.Set(c.Request.Context(), cacheKey, views)
	utils.RespondJSON(c, http.StatusOK, "List of products", views)
}

// GetProduct returns one product with its balance.
func (pc *ProductController) GetProduct(c *gin.Context) {
	theaterID, _ := strconv.ParseUint(c.Param("theater_id"), 10, 32)
	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid product_id"))
		return
	}

	var product models.Product
	if err := pc.DB.Preload("Category").
		Where("theater_id = ?", theaterID).
		First(&product, productID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("product not found"))
		return
	}

	view := productView{Product: product, Image: product.ResolveImage(), Balance: "0"}
	if info, err := pc.Ledger.GetBalance(uint(theaterID), product.ID, time.Now()); err == nil {
		view.Balance = info.Balance.String()
	}
	utils.RespondJSON(c, http.StatusOK, "Product detail", view)
}

type productInput struct {
	CategoryID         uint    `json:"category_id" binding:"required"`
	KioskTypeID        *uint   `json:"kiosk_type_id"`
	Name               string  `json:"name" binding:"required"`
	StockUnit          string  `json:"stock_unit"`
	PackQuantity       string  `json:"pack_quantity"`
	NoQty              int     `json:"no_qty"`
	BasePrice          string  `json:"base_price" binding:"required"`
	SalePrice          string  `json:"sale_price"`
	DiscountPercentage string  `json:"discount_percentage"`
	TaxRate            string  `json:"tax_rate"`
	GSTType            string  `json:"gst_type"`
	IsVeg              *bool   `json:"is_veg"`
	ImageURLs          string  `json:"image_urls"`
	IsActive           *bool   `json:"is_active"`
	IsAvailable        *bool   `json:"is_available"`
}

// CreateProduct registers a catalog product for the caller's theater.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var input productInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	product := models.Product{
		TheaterID:    theaterID,
		CategoryID:   input.CategoryID,
		KioskTypeID:  input.KioskTypeID,
		Name:         input.Name,
		StockUnit:    input.StockUnit,
		PackQuantity: input.PackQuantity,
		NoQty:        input.NoQty,
		GSTType:      input.GSTType,
		ImageURLs:    input.ImageURLs,
		IsVeg:        true,
		IsActive:     true,
		IsAvailable:  true,
	}
	if product.StockUnit == "" {
		product.StockUnit = "Nos"
	}
	if product.NoQty < 1 {
		product.NoQty = 1
	}
	if product.GSTType == "" {
		product.GSTType = models.GSTInclusive
	}
	if product.GSTType != models.GSTInclusive && product.GSTType != models.GSTExclusive {
		utils.RespondError(c, http.StatusBadRequest, errors.New("gst_type must be INCLUSIVE or EXCLUSIVE"))
		return
	}
	if err := applyDecimalFields(&product, input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if input.IsVeg != nil {
		product.IsVeg = *input.IsVeg
	}

	if err := pc.DB.Create(&product).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	pc.Cache.Invalidate(c.Request.Context(), fmt.Sprintf("products:%d:*", theaterID))
	utils.RespondJSON(c, http.StatusCreated, "Product created", product)
}

// UpdateProduct edits a product. StockUnit is immutable once ledger months
// exist for the product.
func (pc *ProductController) UpdateProduct(c *gin.Context) {
	theaterID := c.GetUint("theater_id")
	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid product_id"))
		return
	}

	var product models.Product
	if err := pc.DB.Where("theater_id = ?", theaterID).First(&product, productID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("product not found"))
		return
	}

	var input productInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if input.StockUnit != "" && input.StockUnit != product.StockUnit {
		var months int64
		pc.DB.Model(&models.StockMonth{}).
			Where("theater_id = ? AND product_id = ?", theaterID, product.ID).
			Count(&months)
		if months > 0 {
			utils.RespondAppError(c, utils.NewAppError(utils.KindConflict,
				"stock unit cannot change once ledger months exist"))
			return
		}
		product.StockUnit = input.StockUnit
	}

	product.CategoryID = input.CategoryID
	product.KioskTypeID = input.KioskTypeID
	product.Name = input.Name
	if input.PackQuantity != "" {
		product.PackQuantity = input.PackQuantity
	}
	if input.NoQty > 0 {
		product.NoQty = input.NoQty
	}
	if input.GSTType != "" {
		if input.GSTType != models.GSTInclusive && input.GSTType != models.GSTExclusive {
			utils.RespondError(c, http.StatusBadRequest, errors.New("gst_type must be INCLUSIVE or EXCLUSIVE"))
			return
		}
		product.GSTType = input.GSTType
	}
	if err := applyDecimalFields(&product, input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if input.IsVeg != nil {
		product.IsVeg = *input.IsVeg
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if input.IsAvailable != nil {
		product.IsAvailable = *input.IsAvailable
	}
	if input.ImageURLs != "" {
		product.ImageURLs = input.ImageURLs
	}

	if err := pc.DB.Save(&product).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	pc.Cache.Invalidate(c.Request.Context(), fmt.Sprintf("products:%d:*", theaterID))
	utils.RespondJSON(c, http.StatusOK, "Product updated", product)
}

func applyDecimalFields(product *models.Product, input productInput) error {
	if input.BasePrice != "" {
		v, err := utils.ParseMoney(input.BasePrice)
		if err != nil {
			return errors.New("invalid base_price")
		}
		product.BasePrice = v
	}
	if input.SalePrice != "" {
		v, err := utils.ParseMoney(input.SalePrice)
		if err != nil {
			return errors.New("invalid sale_price")
		}
		product.SalePrice = v
	}
	if input.DiscountPercentage != "" {
		v, err := utils.ParseMoney(input.DiscountPercentage)
		if err != nil {
			return errors.New("invalid discount_percentage")
		}
		product.DiscountPercentage = v
	}
	if input.TaxRate != "" {
		v, err := utils.ParseMoney(input.TaxRate)
		if err != nil {
			return errors.New("invalid tax_rate")
		}
		product.TaxRate = v
	}
	return nil
}
