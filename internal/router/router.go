// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/handlers"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/middleware"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/services"
	"github.com/javajoker/provenance-backend/internal/utils"
)

const apiVersion = "1.0.0"

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config  *config.Config
	Store   *repository.Store
	Ledger  ledger.Reader   // reader for the configured chain and contract
	Chains  ledger.Provider // readers for manual syncs of any supported chain
	Storage *services.StorageService
	Mailer  services.Mailer
	Events  services.EventPublisher
}

// Services groups the application services shared by the router and the
// background synchronizer.
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Notifications *services.NotificationService
	Products      *services.ProductService
	Invoices      *services.InvoiceService
	Transfers     *services.TransferService
	Sync          *services.SyncService
	Search        *services.SearchService
	Analytics     *services.AnalyticsService
	Storage       *services.StorageService
}

func NewServices(deps Dependencies) *Services {
	cfg := deps.Config
	notificationService := services.NewNotificationService(deps.Store, deps.Mailer, cfg.Frontend.BaseURL)

	return &Services{
		Auth:          services.NewAuthService(deps.Store, cfg),
		Users:         services.NewUserService(deps.Store),
		Notifications: notificationService,
		Products:      services.NewProductService(deps.Store, deps.Ledger, notificationService, deps.Events, deps.Storage),
		Invoices:      services.NewInvoiceService(deps.Store, deps.Ledger, notificationService, deps.Events),
		Transfers:     services.NewTransferService(deps.Store, deps.Ledger, notificationService, deps.Events),
		Sync:          services.NewSyncService(deps.Store, deps.Chains, notificationService, deps.Events, deps.Storage, cfg.Sync),
		Search:        services.NewSearchService(deps.Store),
		Analytics:     services.NewAnalyticsService(deps.Store),
		Storage:       deps.Storage,
	}
}

func Initialize(cfg *config.Config, svc *Services, limiters *middleware.Limiters) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	userHandler := handlers.NewUserHandler(svc.Users)
	productHandler := handlers.NewProductHandler(svc.Products)
	invoiceHandler := handlers.NewInvoiceHandler(svc.Invoices)
	transferHandler := handlers.NewTransferHandler(svc.Transfers)
	syncHandler := handlers.NewSyncHandler(svc.Sync)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	searchHandler := handlers.NewSearchHandler(svc.Search, svc.Analytics)
	uploadHandler := handlers.NewUploadHandler(svc.Storage)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()
	if cfg.Storage.MaxUploadSize > 0 {
		r.MaxMultipartMemory = cfg.Storage.MaxUploadSize
	}

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middleware.I18nMiddleware())
	r.Use(limiters.General.Middleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": apiVersion,
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		v1.POST("/auth", limiters.Auth.Middleware(), authHandler.Login)

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/:address", userHandler.GetUser)
			users.PUT("/:address", middleware.AuthRequired(), userHandler.UpdateProfile)
		}

		// Product routes
		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:id", productHandler.GetProduct)
			products.GET("/:id/audit-trail", productHandler.GetAuditTrail)

			protected := products.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", productHandler.CreateProduct)
				protected.PUT("/:id", productHandler.UpdateProduct)
			}
		}

		// Invoice routes
		invoices := v1.Group("/invoices")
		{
			invoices.GET("/:id", invoiceHandler.GetInvoice)
			invoices.POST("", middleware.AuthRequired(), invoiceHandler.CreateInvoice)
		}

		v1.GET("/contract/invoices/:id", invoiceHandler.GetContractInvoice)

		// Transfer routes
		transfers := v1.Group("/transfers")
		{
			transfers.GET("/:id", transferHandler.GetTransfer)

			protected := transfers.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", transferHandler.InitiateTransfer)
				protected.POST("/:id/sign", transferHandler.SignTransfer)
			}
		}

		// Synchronizer routes
		sync := v1.Group("/sync")
		{
			sync.POST("", limiters.Sync.Middleware(), syncHandler.TriggerSync)
			sync.GET("/:chainId", syncHandler.GetStatus)
		}

		// Notification routes
		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.PUT("/read", notificationHandler.MarkRead)
		}

		v1.GET("/search", searchHandler.Search)
		v1.GET("/analytics", searchHandler.Analytics)
		v1.POST("/upload", middleware.AuthRequired(), limiters.Upload.Middleware(), uploadHandler.Upload)
	}

	return r
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.Environment == "production" {
		corsCfg.AllowOrigins = []string{cfg.Frontend.BaseURL}
	} else {
		corsCfg.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsCfg
}
