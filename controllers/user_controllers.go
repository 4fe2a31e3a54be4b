package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

type UserController struct {
	DB *gorm.DB
}

func NewUserController(db *gorm.DB) *UserController {
	return &UserController{DB: db}
}

type registerInput struct {
	TheaterID uint   `json:"theater_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role"`
}

func (uc *UserController) Register(c *gin.Context) {
	var input registerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	role := input.Role
	if role == "" {
		role = "staff"
	}
	if role != "staff" && role != "admin" {
		utils.RespondError(c, http.StatusBadRequest, errors.New("role must be staff or admin"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	user := models.User{
		TheaterID: input.TheaterID,
		Name:      input.Name,
		Email:     input.Email,
		Password:  string(hashed),
		Role:      role,
	}
	if err := uc.DB.Create(&user).Error; err != nil {
		utils.RespondError(c, http.StatusConflict, errors.New("email already registered"))
		return
	}

	utils.InfoLogger.Printf("user %s registered for theater %d", user.Email, user.TheaterID)
	utils.RespondJSON(c, http.StatusCreated, "User registered", gin.H{
		"id":         user.ID,
		"theater_id": user.TheaterID,
		"email":      user.Email,
		"role":       user.Role,
	})
}

type loginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (uc *UserController) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var user models.User
	if err := uc.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		utils.RespondAppError(c, utils.NewAppError(utils.KindAuth, "invalid email or password"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.RespondAppError(c, utils.NewAppError(utils.KindAuth, "invalid email or password"))
		return
	}

	token, err := utils.GenerateToken(user.ID, user.TheaterID, user.Role)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Login successful", gin.H{
		"token":      token,
		"theater_id": user.TheaterID,
		"role":       user.Role,
		"name":       user.Name,
	})
}

// GetProfile returns the authenticated user.
func (uc *UserController) GetProfile(c *gin.Context) {
	userID := c.GetUint("user_id")
	var user models.User
	if err := uc.DB.First(&user, userID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("user not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "User profile", user)
}
