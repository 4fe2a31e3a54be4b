package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/cache"
	"github.com/yeremiapane/concessions-app/config"
	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/router"
	"github.com/yeremiapane/concessions-app/services"
	"github.com/yeremiapane/concessions-app/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	utils.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("configuration error: %v", err)
	}
	if err := utils.InitJWT(cfg.JWTSecret); err != nil {
		utils.ErrorLogger.Fatalf("jwt setup failed: %v", err)
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		utils.ErrorLogger.Fatalf("failed to connect to database: %v", err)
	}
	utils.InitDB(db)
	autoMigrate(db)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ledger := services.NewStockLedger(db)
	orders := services.NewOrderService(db, ledger)
	gateway := services.GetRazorpayService()
	if err := gateway.ValidateConfig(); err != nil {
		utils.InfoLogger.Printf("razorpay disabled: %v", err)
	}
	payments := services.NewPaymentService(db, orders, gateway)
	payments.StartExpirySweeper()
	defer payments.StopExpirySweeper()

	worker := services.NewOutboxWorker(db, ledger, orders)
	worker.Start()
	defer worker.Stop()

	r := router.SetupRouter(router.Deps{
		DB:       db,
		Ledger:   ledger,
		Orders:   orders,
		Payments: payments,
		Cache:    cache.New(),
		Hub:      realtime.Default(),
	})

	utils.InfoLogger.Printf("listening on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func autoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.Theater{},
		&models.User{},
		&models.Category{},
		&models.KioskType{},
		&models.Product{},
		&models.ComboOffer{},
		&models.ComboOfferItem{},
		&models.StockMonth{},
		&models.StockEntry{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderItemComponent{},
		&models.Payment{},
		&models.StockOutbox{},
	)
	if err != nil {
		utils.ErrorLogger.Fatalf("failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed")
}
