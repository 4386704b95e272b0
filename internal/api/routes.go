package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/configs"
	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/middleware"
	"kansha-backend-go/internal/models"
)

// Dependencies groups what the handlers need.
type Dependencies struct {
	Auth        *middleware.AuthMiddleware
	Users       db.UserRepository
	Gate        *core.AuthGate
	UserService core.UserService
	Checkout    core.CheckoutService
	Billing     core.BillingService
	DeadLetters core.DeadLetterService
	Catalog     *configs.Catalog
	Metrics     *metrics.Metrics
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (request ID, logging, recovery, CORS) is applied in main before this runs.
func SetupRoutes(router *gin.Engine, logger *zap.Logger, deps Dependencies) {
	authMW := deps.Auth

	authHandler := NewAuthHandler(deps.UserService, logger)
	userHandler := NewUserHandler(deps.UserService, deps.Catalog, logger)
	sessionHandler := NewSessionHandler(deps.Gate, logger)
	checkoutHandler := NewCheckoutHandler(deps.Checkout, logger)
	billingHandler := NewBillingHandler(deps.Billing, logger)
	adminHandler := NewAdminHandler(deps.DeadLetters, logger)

	apiV1 := router.Group("/api/v1")
	{
		sessionGroup := apiV1.Group("/session")
		{
			sessionGroup.GET("/destination", authMW.OptionalToken(), sessionHandler.Destination)
			sessionGroup.GET("/events", authMW.VerifyToken(), sessionHandler.Events)
			sessionGroup.POST("/signout", authMW.VerifyToken(), sessionHandler.SignOut)
		}

		usersGroup := apiV1.Group("/users", authMW.VerifyToken())
		{
			usersGroup.POST("/initialize", authHandler.InitializeUserProfile)
			usersGroup.GET("/me", userHandler.GetCurrentUserProfile)
			usersGroup.PUT("/me/role", userHandler.SelectRole)
		}

		checkoutGroup := apiV1.Group("/checkout", authMW.VerifyToken())
		{
			checkoutGroup.POST("/products", checkoutHandler.CreateProductCheckout)
			checkoutGroup.POST("/subscription", checkoutHandler.CreateSubscriptionCheckout)
		}

		billingGroup := apiV1.Group("/billing")
		{
			billingGroup.POST("/portal", authMW.VerifyToken(), billingHandler.CreatePortalSession)
			// Stripe authenticates webhooks by signature; no token middleware.
			billingGroup.POST("/webhooks/stripe", billingHandler.HandleStripeWebhook)
		}

		adminGroup := apiV1.Group("/admin", authMW.VerifyToken(),
			middleware.RequireRole(deps.Users, logger, models.RoleAdministrator))
		{
			adminGroup.GET("/dead-letters", adminHandler.ListDeadLetters)
			adminGroup.DELETE("/dead-letters", adminHandler.PurgeDeadLetters)
			adminGroup.POST("/dead-letters/:id/replay", adminHandler.ReplayDeadLetter)
			adminGroup.DELETE("/dead-letters/:id", adminHandler.DeleteDeadLetter)
		}
	}

	// Legacy webhook path still configured in the Stripe dashboard.
	router.POST("/api/webhook", billingHandler.HandleStripeWebhook)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Kansha backend is healthy."})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	logger.Info("API routes configured successfully under /api/v1, /health and /metrics.")
}
