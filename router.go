package main

import (
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/controllers"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/middleware"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

const serviceName = "storefront-api"

// setupRouter builds the HTTP router with every route registered
func setupRouter(cfg *config.Config) *gin.Engine {
	utils.RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware())
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware(serviceName))
	}
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.SessionHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// OTP and admin login: a burst of 5, then one every 12 seconds per IP
	authLimiter := middleware.NewIPRateLimiter(rate.Every(12*time.Second), 5)
	couponLimiter := middleware.NewIPRateLimiter(rate.Limit(1), 10)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		catalog := v1.Group("/products", gzip.Gzip(gzip.DefaultCompression))
		{
			catalog.GET("", controllers.ListProducts)
			catalog.GET("/:slug", controllers.GetProduct)
		}

		auth := v1.Group("/auth")
		{
			auth.POST("/otp/request", middleware.RateLimit(authLimiter), controllers.RequestOTP)
			auth.POST("/otp/verify", middleware.RateLimit(authLimiter), controllers.VerifyOTP)
			auth.POST("/admin/login", middleware.RateLimit(authLimiter), controllers.AdminLogin)
			auth.POST("/logout", middleware.RequireSession(), controllers.Logout)
			auth.GET("/me", middleware.RequireSession(), controllers.GetMe)
		}

		// Gateway callback, authenticated by its HMAC signature
		v1.POST("/payments/webhook", controllers.PaymentWebhook)

		customer := v1.Group("", middleware.RequireSession())
		{
			customer.GET("/cart", controllers.GetCart)
			customer.POST("/cart/items", controllers.AddCartItem)
			customer.PATCH("/cart/items/:id", controllers.UpdateCartItem)
			customer.DELETE("/cart/items/:id", controllers.RemoveCartItem)

			customer.GET("/addresses", controllers.ListAddresses)
			customer.POST("/addresses", controllers.CreateAddress)
			customer.DELETE("/addresses/:id", controllers.DeleteAddress)

			customer.POST("/coupons/validate", middleware.RateLimit(couponLimiter), controllers.ValidateCoupon)

			customer.POST("/orders", controllers.Checkout)
			customer.GET("/orders", controllers.ListMyOrders)
			customer.GET("/orders/:number", controllers.GetMyOrder)
			customer.POST("/orders/:number/cancel", controllers.CancelMyOrder)

			customer.POST("/payments/verify", controllers.VerifyPayment)
		}

		admin := v1.Group("/admin", middleware.EnsureValidToken(cfg), middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/dashboard", controllers.AdminDashboard)

			admin.GET("/products", controllers.AdminListProducts)
			admin.POST("/products", controllers.CreateProduct)
			admin.GET("/products/:id", controllers.AdminGetProduct)
			admin.PATCH("/products/:id", controllers.SetProductActive)
			admin.PUT("/products/:id/stock", controllers.UpdateBaseStock)
			admin.POST("/products/:id/image", controllers.UploadProductImage)
			admin.DELETE("/products/:id/image", controllers.DeleteProductImage)
			admin.PATCH("/variants/:id/price", controllers.UpdateVariantPrice)
			admin.DELETE("/variants/:id", controllers.RemoveVariant)

			admin.GET("/orders", controllers.AdminListOrders)
			admin.GET("/orders/:id", controllers.AdminGetOrder)
			admin.PATCH("/orders/:id/status", controllers.AdminUpdateOrderStatus)
			admin.POST("/orders/:id/cancel", controllers.AdminCancelOrder)
			admin.POST("/orders/:id/ship", controllers.AdminShipOrder)
			admin.POST("/shipments/track", controllers.AdminTrackShipments)

			admin.GET("/coupons", controllers.ListCoupons)
			admin.POST("/coupons", controllers.CreateCoupon)
			admin.DELETE("/coupons/:id", controllers.DeactivateCoupon)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Storefront API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
