package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/concessions-app/cache"
	"github.com/yeremiapane/concessions-app/controllers"
	"github.com/yeremiapane/concessions-app/middlewares"
	"github.com/yeremiapane/concessions-app/realtime"
	"github.com/yeremiapane/concessions-app/services"
)

// Deps carries the shared services the routes are wired over.
type Deps struct {
	DB       *gorm.DB
	Ledger   *services.StockLedger
	Orders   *services.OrderService
	Payments *services.PaymentService
	Cache    *cache.Cache
	Hub      *realtime.Hub
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	userCtrl := controllers.NewUserController(deps.DB)
	productCtrl := controllers.NewProductController(deps.DB, deps.Ledger, deps.Cache)
	catalogCtrl := controllers.NewCatalogController(deps.DB)
	stockCtrl := controllers.NewStockController(deps.DB, deps.Ledger)
	orderCtrl := controllers.NewOrderController(deps.DB, deps.Orders)
	paymentCtrl := controllers.NewPaymentController(deps.Payments)
	streamCtrl := controllers.NewStreamController(deps.Hub)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	public := r.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	auth.Use(middlewares.NewIPRateLimiter(50, 100))

	auth.GET("/profile", userCtrl.GetProfile)

	// Catalog and stock, scoped to the token's theater.
	scoped := auth.Group("/")
	scoped.Use(middlewares.RequireTheater())
	{
		scoped.GET("/theater-products/:theater_id", productCtrl.GetTheaterProducts)
		scoped.GET("/theater-products/:theater_id/:product_id", productCtrl.GetProduct)
		scoped.GET("/theater-categories/:theater_id", catalogCtrl.GetCategories)
		scoped.GET("/theater-kiosk-types/:theater_id", catalogCtrl.GetKioskTypes)
		scoped.GET("/theater-combo-offers/:theater_id", catalogCtrl.GetComboOffers)

		scoped.GET("/cafe-stock/:theater_id/:product_id", stockCtrl.GetBalance)
		scoped.GET("/cafe-stock/excel-all/:theater_id", stockCtrl.ExportStock)
		scoped.GET("/cafe-stock/sales-report/:theater_id", stockCtrl.SalesReport)

		scoped.GET("/payments/config/:theater_id/:channel", paymentCtrl.GetChannelConfig)
		scoped.GET("/orders/theater/:theater_id/:order_id", orderCtrl.GetOrder)
		scoped.POST("/orders/theater/:theater_id/:order_id/complete", orderCtrl.CompleteOrder)
		scoped.POST("/orders/theater/:theater_id/:order_id/cancel", orderCtrl.CancelOrder)
	}

	// Orders.
	auth.POST("/orders/theater", orderCtrl.CreateOrder)
	auth.POST("/orders/theater-sync", orderCtrl.SyncOrders)
	auth.GET("/orders/theater", orderCtrl.GetOrders)

	// Payments.
	auth.POST("/payments/create-order", paymentCtrl.CreateIntent)
	auth.POST("/payments/verify", paymentCtrl.VerifyPayment)

	// Real-time feed, theater taken from the token.
	auth.GET("/notifications/stream", streamCtrl.Stream)

	// Admin-only surface.
	admin := auth.Group("/")
	admin.Use(middlewares.RequireRole("admin"))
	{
		admin.PUT("/theater-products/:theater_id/:product_id", productCtrl.UpdateProduct)
		admin.POST("/theater-products", productCtrl.CreateProduct)
		admin.POST("/theater-categories", catalogCtrl.CreateCategory)
		admin.POST("/theater-kiosk-types", catalogCtrl.CreateKioskType)
		admin.POST("/theater-combo-offers", catalogCtrl.CreateComboOffer)
		admin.POST("/cafe-stock/events", stockCtrl.AppendEvent)
		admin.POST("/cafe-stock/rollover", stockCtrl.Rollover)
		admin.POST("/orders/theater-refund/:order_id", orderCtrl.RefundOrder)
	}

	return r
}
