// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/freshrebate/grc-backend/internal/config"
	"github.com/freshrebate/grc-backend/internal/handlers"
	"github.com/freshrebate/grc-backend/internal/middleware"
	"github.com/freshrebate/grc-backend/internal/services"
	"github.com/freshrebate/grc-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	storageService, _ := services.NewStorageService(cfg)
	ocrService, _ := services.NewOCRService(cfg)

	authService := services.NewAuthService(db, cfg, notificationService)
	userService := services.NewUserService(db)
	queueService := services.NewQueueService(db, notificationService)
	certificateService := services.NewCertificateService(db, queueService, notificationService)
	inventoryService := services.NewInventoryService(db, queueService, notificationService)
	paymentService := services.NewPaymentService(db, cfg, inventoryService)
	qualificationService := services.NewQualificationService(db, certificateService, notificationService)
	receiptService := services.NewReceiptService(db, storageService, ocrService, qualificationService, notificationService)
	fulfillmentService := services.NewFulfillmentService(db, notificationService)
	adminService := services.NewAdminService(db, notificationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	certificateHandler := handlers.NewCertificateHandler(certificateService, queueService)
	receiptHandler := handlers.NewReceiptHandler(receiptService)
	purchaseHandler := handlers.NewPurchaseHandler(inventoryService, paymentService, certificateService)
	qualificationHandler := handlers.NewQualificationHandler(qualificationService, fulfillmentService)
	adminHandler := handlers.NewAdminHandler(adminService, certificateService, paymentService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/verify-email/:token", authHandler.VerifyEmail)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(middleware.AuthRequired())
		{
			users.PUT("/profile", userHandler.UpdateProfile)
			users.DELETE("/account", userHandler.DeleteAccount)
		}

		// Member certificate routes
		certificates := v1.Group("/certificates")
		certificates.Use(middleware.AuthRequired())
		{
			certificates.GET("", middleware.MemberRequired(), certificateHandler.GetMyCertificates)
			certificates.GET("/queue", middleware.MemberRequired(), certificateHandler.GetQueue)
			certificates.PUT("/queue", middleware.MemberRequired(), certificateHandler.ReorderQueue)
			certificates.GET("/:id", certificateHandler.GetCertificate)
			certificates.POST("/:id/register", middleware.MemberRequired(), certificateHandler.Register)
		}

		// Member receipt routes
		receipts := v1.Group("/receipts")
		receipts.Use(middleware.AuthRequired())
		{
			receipts.POST("", middleware.MemberRequired(), middleware.UploadRateLimit(), receiptHandler.SubmitReceipt)
			receipts.GET("", middleware.MemberRequired(), receiptHandler.GetMyReceipts)
			receipts.GET("/:id", receiptHandler.GetReceipt)
		}

		// Member qualification routes
		periods := v1.Group("/periods")
		periods.Use(middleware.AuthRequired())
		{
			periods.GET("", middleware.MemberRequired(), qualificationHandler.GetMyPeriods)
			periods.GET("/:id", qualificationHandler.GetPeriod)
			periods.POST("/:id/survey", middleware.MemberRequired(), qualificationHandler.CompleteSurvey)
		}

		// Merchant routes
		merchant := v1.Group("/merchant")
		merchant.Use(middleware.AuthRequired(), middleware.MerchantRequired())
		{
			merchant.POST("/purchases", purchaseHandler.RecordPurchase)
			merchant.GET("/purchases", purchaseHandler.GetPurchases)
			merchant.POST("/purchases/:id/payment-intent", purchaseHandler.CreatePaymentIntent)
			merchant.POST("/purchases/confirm-payment", purchaseHandler.ConfirmPayment)
			merchant.GET("/inventory", purchaseHandler.GetInventory)
			merchant.GET("/certificates", purchaseHandler.GetIssuedCertificates)
			merchant.POST("/certificates/issue", purchaseHandler.IssueCertificate)
			merchant.POST("/certificates/bulk-issue", purchaseHandler.BulkIssue)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			// Dashboard
			dashboard := admin.Group("/dashboard")
			{
				dashboard.GET("/stats", adminHandler.GetDashboardStats)
			}

			// User management
			adminUsers := admin.Group("/users")
			{
				adminUsers.GET("", adminHandler.GetUsers)
				adminUsers.PUT("/:id/status", adminHandler.UpdateUserStatus)
			}

			// Certificate oversight
			adminCertificates := admin.Group("/certificates")
			{
				adminCertificates.GET("", adminHandler.GetCertificates)
				adminCertificates.POST("/expire-stale", adminHandler.ExpireStaleCertificates)
			}

			// Purchase oversight
			adminPurchases := admin.Group("/purchases")
			{
				adminPurchases.GET("", adminHandler.GetPurchases)
				adminPurchases.POST("/:id/refund", adminHandler.RefundPurchase)
			}

			// Receipt review
			adminReceipts := admin.Group("/receipts")
			{
				adminReceipts.GET("/review-queue", receiptHandler.GetReviewQueue)
				adminReceipts.POST("/:id/approve", receiptHandler.ApproveReceipt)
				adminReceipts.POST("/:id/reject", receiptHandler.RejectReceipt)
			}

			// Qualification review and month close
			adminPeriods := admin.Group("/periods")
			{
				adminPeriods.GET("/pending-review", qualificationHandler.GetPendingReview)
				adminPeriods.POST("/:id/resolve-review", qualificationHandler.ResolveReview)
				adminPeriods.POST("/:id/forfeit", qualificationHandler.ForfeitPeriod)
				adminPeriods.POST("/forfeit-expired", qualificationHandler.ForfeitExpired)
			}

			// Gift card fulfillment
			adminFulfillments := admin.Group("/fulfillments")
			{
				adminFulfillments.GET("", qualificationHandler.GetPendingFulfillments)
				adminFulfillments.GET("/stats", qualificationHandler.GetFulfillmentStats)
				adminFulfillments.POST("/:id/mark-sent", qualificationHandler.MarkRewardSent)
			}

			// Analytics and reporting
			adminAnalytics := admin.Group("/analytics")
			{
				adminAnalytics.GET("", adminHandler.GetAnalytics)
			}

			// Settings management
			adminSettings := admin.Group("/settings")
			{
				adminSettings.GET("", adminHandler.GetSettings)
				adminSettings.PUT("/:category/:key", adminHandler.UpdateSetting)
			}

			// Audit trail and notifications
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
			adminNotifications := admin.Group("/notifications")
			{
				adminNotifications.GET("", adminHandler.GetNotifications)
				adminNotifications.PUT("/:id/read", adminHandler.MarkNotificationRead)
			}
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", "./uploads")
	}

	return r
}
