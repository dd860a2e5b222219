// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/licadmin-backend/internal/cache"
	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/handlers"
	"github.com/javajoker/licadmin-backend/internal/middleware"
	"github.com/javajoker/licadmin-backend/internal/provider"
	"github.com/javajoker/licadmin-backend/internal/repository"
	"github.com/javajoker/licadmin-backend/internal/services"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

// Initialize wires repositories, services and handlers and returns the
// configured engine together with the sync service so main can hand it
// to the scheduler.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.SyncService) {
	// Repositories
	licenseRepo := repository.NewLicenseRepository(db)
	stagingRepo := repository.NewExternalLicenseRepository(db)

	// Cache backend
	var appCache cache.Cache
	if cfg.Cache.Backend == "redis" {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			logrus.WithError(err).Warn("Redis unavailable, falling back to in-memory cache")
			appCache = cache.NewMemoryCache()
		} else {
			appCache = redisCache
		}
	} else {
		appCache = cache.NewMemoryCache()
	}
	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	// Services
	providerClient := provider.NewClient(cfg.Provider)
	syncService := services.NewSyncService(cfg.Sync, providerClient, stagingRepo, licenseRepo)
	licenseService := services.NewLicenseService(licenseRepo, stagingRepo, appCache, cacheTTL)
	authService := services.NewAuthService(db, cfg)
	userService := services.NewUserService(db)
	smsService := services.NewSmsService(db, licenseRepo, cfg)
	exportService, err := services.NewExportService(cfg, licenseRepo)
	if err != nil {
		logrus.WithError(err).Warn("Export service unavailable")
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	licenseHandler := handlers.NewLicenseHandler(licenseService, exportService)
	syncHandler := handlers.NewSyncHandler(syncService)
	smsHandler := handlers.NewSmsHandler(smsService)
	userHandler := handlers.NewUserHandler(userService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// License routes
		licenses := v1.Group("/licenses")
		licenses.Use(middleware.AuthRequired())
		{
			licenses.GET("", licenseHandler.GetLicenses)
			licenses.POST("", licenseHandler.CreateLicense)
			licenses.PATCH("/bulk", licenseHandler.BulkUpdate)
			licenses.GET("/dashboard/metrics", licenseHandler.GetDashboardMetrics)
			licenses.POST("/export", licenseHandler.ExportLicenses)

			// External provider synchronization
			sync := licenses.Group("/sync")
			sync.Use(middleware.SyncRateLimit())
			{
				sync.POST("", syncHandler.TriggerSync)
				sync.GET("/status", syncHandler.GetSyncStatus)
				sync.POST("/release", middleware.AdminRequired(), syncHandler.ForceRelease)
			}

			// SMS credit ledger
			licenses.POST("/sms/confirm", smsHandler.ConfirmTopUp)
			licenses.POST("/:id/sms/topup", smsHandler.CreateTopUp)
			licenses.GET("/:id/sms/payments", smsHandler.GetPayments)

			licenses.GET("/:id", licenseHandler.GetLicense)
			licenses.PUT("/:id", licenseHandler.UpdateLicense)
			licenses.DELETE("/:id", middleware.AdminRequired(), licenseHandler.DeleteLicense)
		}

		// User management (admin only)
		users := v1.Group("/users")
		users.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			users.GET("", userHandler.GetUsers)
			users.POST("", userHandler.CreateUser)
			users.PUT("/:id", userHandler.UpdateUser)
		}
	}

	return r, syncService
}
