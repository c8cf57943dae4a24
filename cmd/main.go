package main

import (
	"fmt"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"storebill/internal/caching"
	"storebill/internal/common"
	"storebill/internal/config"
	"storebill/internal/handlers"
	"storebill/internal/jobs/background"
	"storebill/internal/repositories"
	"storebill/internal/services"
	"storebill/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Database connection pool
	pool, err := database.NewPool(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create repositories
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)
	billingEventRepo := repositories.NewBillingEventRepo(pool)
	customerRepo := repositories.NewCustomerRepo(pool)
	productRepo := repositories.NewProductRepo(pool)

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	// Per-subscription serialization shared by ticks and reconciliation
	locks := common.NewKeyLock()

	// Create services
	gatewaySvc := services.NewGatewayService(
		cfg.Gateway.APIKey,
		cfg.Gateway.APISecret,
		cfg.Gateway.WebhookSecret,
		cfg.Gateway.BaseURL,
		cfg.GatewayTimeout(),
	)
	directorySvc := services.NewDirectoryService(customerRepo, productRepo, cacheSvc)
	invoiceSvc := services.NewInvoiceService(invoiceRepo, gatewaySvc, cfg.Billing.InvoiceDueDays)
	subscriptionSvc := services.NewSubscriptionService(
		subscriptionRepo,
		invoiceSvc,
		directorySvc,
		gatewaySvc,
		locks,
		cfg.Billing.AutoCancelOverdueAfterDays,
	)
	reconciliationSvc := services.NewReconciliationService(
		billingEventRepo,
		invoiceRepo,
		subscriptionSvc,
		gatewaySvc,
		cacheSvc,
		locks,
	)

	// Background billing scheduler
	scheduler := background.NewJobScheduler(
		subscriptionRepo,
		subscriptionSvc,
		reconciliationSvc,
		cfg.TickInterval(),
		cfg.PollAfter(),
		cfg.Billing.WorkerCap,
	)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}
	}()

	// Create handlers
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc)
	webhookHandlers := handlers.NewWebhookHandlers(reconciliationSvc, gatewaySvc)
	healthHandlers := handlers.NewHealthHandlers(pool)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)

	// Webhook ingestion (signature-verified, no dashboard auth)
	e.POST("/webhooks/payments", webhookHandlers.PaymentWebhook)

	// API routes
	v1 := e.Group("/v1")
	v1.POST("/subscriptions", subscriptionHandlers.CreateSubscription)
	v1.GET("/subscriptions", subscriptionHandlers.ListSubscriptions)
	v1.GET("/subscriptions/:id", subscriptionHandlers.GetSubscription)
	v1.POST("/subscriptions/:id/cancel", subscriptionHandlers.CancelSubscription)

	log.Printf("🚀 Storebill billing engine v%s starting on port %d", version, cfg.Server.Port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", cfg.Server.Port)))
}
