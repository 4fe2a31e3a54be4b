package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

// CatalogController serves the supporting catalog entities: categories, kiosk
// types and combo offers.
type CatalogController struct {
	DB *gorm.DB
}

func NewCatalogController(db *gorm.DB) *CatalogController {
	return &CatalogController{DB: db}
}

func (cc *CatalogController) GetCategories(c *gin.Context) {
	theaterID := c.Param("theater_id")
	var categories []models.Category
	if err := cc.DB.Where("theater_id = ?", theaterID).Order("name asc").Find(&categories).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of categories", categories)
}

func (cc *CatalogController) CreateCategory(c *gin.Context) {
	theaterID := c.GetUint("theater_id")
	var input struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	category := models.Category{TheaterID: theaterID, Name: input.Name}
	if err := cc.DB.Create(&category).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Category created", category)
}

func (cc *CatalogController) GetKioskTypes(c *gin.Context) {
	theaterID := c.Param("theater_id")
	var kioskTypes []models.KioskType
	if err := cc.DB.Where("theater_id = ?", theaterID).Order("name asc").Find(&kioskTypes).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of kiosk types", kioskTypes)
}

func (cc *CatalogController) CreateKioskType(c *gin.Context) {
	theaterID := c.GetUint("theater_id")
	var input struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	kioskType := models.KioskType{TheaterID: theaterID, Name: input.Name}
	if err := cc.DB.Create(&kioskType).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Kiosk type created", kioskType)
}

func (cc *CatalogController) GetComboOffers(c *gin.Context) {
	theaterID := c.Param("theater_id")
	var combos []models.ComboOffer
	if err := cc.DB.Preload("Items").Preload("Items.Product").
		Where("theater_id = ? AND is_active = ?", theaterID, true).
		Order("name asc").
		Find(&combos).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of combo offers", combos)
}

type comboInput struct {
	Name               string `json:"name" binding:"required"`
	OfferPrice         string `json:"offer_price" binding:"required"`
	DiscountPercentage string `json:"discount_percentage"`
	TaxRate            string `json:"tax_rate"`
	GSTType            string `json:"gst_type"`
	Items              []struct {
		ProductID uint `json:"product_id" binding:"required"`
		Quantity  int  `json:"quantity" binding:"required,min=1"`
	} `json:"items" binding:"required,min=1"`
}

// CreateComboOffer registers a combo. Every component must belong to the same
// theater; the expansion to stock consumption happens at order time.
func (cc *CatalogController) CreateComboOffer(c *gin.Context) {
	theaterID := c.GetUint("theater_id")

	var input comboInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	offerPrice, err := utils.ParseMoney(input.OfferPrice)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid offer_price"))
		return
	}

	combo := models.ComboOffer{
		TheaterID:   theaterID,
		Name:        input.Name,
		OfferPrice:  offerPrice,
		GSTType:     input.GSTType,
		IsActive:    true,
		IsAvailable: true,
	}
	if combo.GSTType == "" {
		combo.GSTType = models.GSTInclusive
	}
	if input.DiscountPercentage != "" {
		if combo.DiscountPercentage, err = utils.ParseMoney(input.DiscountPercentage); err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid discount_percentage"))
			return
		}
	}
	if input.TaxRate != "" {
		if combo.TaxRate, err = utils.ParseMoney(input.TaxRate); err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid tax_rate"))
			return
		}
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		for _, item := range input.Items {
			var count int64
			tx.Model(&models.Product{}).
				Where("id = ? AND theater_id = ?", item.ProductID, theaterID).
				Count(&count)
			if count == 0 {
				return utils.NewAppError(utils.KindValidation,
					"combo component product "+strconv.Itoa(int(item.ProductID))+" not found")
			}
			combo.Items = append(combo.Items, models.ComboOfferItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}
		return tx.Create(&combo).Error
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Combo offer created", combo)
}
