package main

import (
	"log"

	"github.com/gatherhq/community-api/internal/config"
	"github.com/gatherhq/community-api/internal/constants"
	"github.com/gatherhq/community-api/internal/database"
	"github.com/gatherhq/community-api/internal/handlers"
	"github.com/gatherhq/community-api/internal/middleware"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Gin router
	r := gin.Default()

	// Setup session middleware with Redis
	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	store, err := redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret), // authentication key
	)
	if err != nil {
		log.Fatalf("Failed to create Redis store: %v", err)
	}
	// Configure session options based on environment
	isProduction := cfg.GinMode == "release"
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction, // true in production (HTTPS), false in development
		SameSite: 2,            // SameSite=Lax (1=Strict, 2=Lax, 3=None)
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Payment gateway: Stripe when configured, an in-memory fake otherwise
	// so development works without credentials.
	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		log.Println("STRIPE_SECRET_KEY not set, using in-memory payment gateway")
		gateway = payment.NewFakeGateway()
	}
	coordinator := payment.NewCoordinator(gateway, payment.Options{
		Currency:           cfg.Currency,
		CheckoutSuccessURL: cfg.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.CheckoutCancelURL,
		PayoutRefreshURL:   cfg.PayoutRefreshURL,
		PayoutReturnURL:    cfg.PayoutReturnURL,
	})

	// Initialize repositories
	db := database.GetDB()
	principalRepo := repository.NewPrincipalRepository(db)
	communityRepo := repository.NewCommunityRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)

	// Initialize services
	authService := services.NewAuthService(principalRepo)
	communityService := services.NewCommunityService(communityRepo, coordinator)
	eventService := services.NewEventService(eventRepo, communityRepo, registrationRepo, coordinator)
	registrationService := services.NewRegistrationService(registrationRepo, eventRepo, communityRepo, principalRepo, coordinator)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	communityHandler := handlers.NewCommunityHandler(communityService)
	eventHandler := handlers.NewEventHandler(eventService)
	registrationHandler := handlers.NewRegistrationHandler(registrationService, eventService)
	webhookHandler := handlers.NewWebhookHandler(registrationService, cfg.StripeWebhookSecret)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Community Events API is running",
		})
	})

	// Payment webhook (authenticated by signature, not session)
	r.POST("/webhooks/payment", webhookHandler.HandlePaymentWebhook)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.GetCurrentPrincipal)
		}

		// Community routes (protected)
		communities := api.Group("/communities")
		communities.Use(middleware.RequireAuth())
		{
			communities.POST("", communityHandler.CreateCommunity)
			communities.GET("", communityHandler.ListCommunities)
			communities.GET("/:id", middleware.RequireCommunityAccess(), communityHandler.GetCommunity)
			communities.PATCH("/:id", middleware.RequireCommunityAccess(), communityHandler.UpdateCommunity)
			communities.POST("/:id/join", communityHandler.JoinCommunity)
			communities.POST("/:id/leave", middleware.RequireCommunityAccess(), communityHandler.LeaveCommunity)
			communities.GET("/:id/join-requests", middleware.RequireCommunityAccess(), communityHandler.ListJoinRequests)
			communities.POST("/:id/join-requests/:requestId/approve", middleware.RequireCommunityAccess(), communityHandler.ApproveJoinRequest)
			communities.POST("/:id/join-requests/:requestId/reject", middleware.RequireCommunityAccess(), communityHandler.RejectJoinRequest)
			communities.PUT("/:id/members/:principalId/role", middleware.RequireCommunityAccess(), communityHandler.ChangeMemberRole)
			communities.DELETE("/:id/members/:principalId", middleware.RequireCommunityAccess(), communityHandler.RemoveMember)
			communities.POST("/:id/payout-account", middleware.RequireCommunityAccess(), communityHandler.ConnectPayoutAccount)
			communities.POST("/:id/payout-account/refresh", middleware.RequireCommunityAccess(), communityHandler.RefreshPayoutStatus)

			// Events nested under their community
			communities.GET("/:id/events", middleware.RequireCommunityAccess(), eventHandler.ListCommunityEvents)
			communities.POST("/:id/events", middleware.RequireCommunityAccess(), eventHandler.CreateEvent)
		}

		// Event routes (protected)
		events := api.Group("/events")
		events.Use(middleware.RequireAuth())
		{
			events.GET("/:eventId", eventHandler.GetEvent)
			events.PATCH("/:eventId", eventHandler.UpdateEvent)
			events.DELETE("/:eventId", eventHandler.DeleteEvent)
			events.POST("/:eventId/pricing/retry", eventHandler.RetryPricing)
			events.POST("/:eventId/register", registrationHandler.Register)
			events.GET("/:eventId/registration", registrationHandler.GetOwnRegistration)
			events.GET("/:eventId/registrations", registrationHandler.ListRegistrations)
			events.POST("/:eventId/walk-ins", registrationHandler.AddWalkIn)
		}

		// Registration routes (protected)
		registrations := api.Group("/registrations")
		registrations.Use(middleware.RequireAuth())
		{
			registrations.POST("/:registrationId/checkout", registrationHandler.RetryCheckout)
			registrations.POST("/:registrationId/check-in", registrationHandler.CheckIn)
			registrations.POST("/:registrationId/undo-check-in", registrationHandler.UndoCheckIn)
			registrations.POST("/:registrationId/cancel", registrationHandler.Cancel)
			registrations.POST("/:registrationId/mark-paid", registrationHandler.MarkPaid)
			registrations.POST("/:registrationId/refund", registrationHandler.Refund)
		}
	}

	// Start server
	log.Println("Server starting on :8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
