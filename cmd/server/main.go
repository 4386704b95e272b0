package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kansha-backend-go/configs"
	"kansha-backend-go/internal/api"
	"kansha-backend-go/internal/config"
	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/middleware"
	"kansha-backend-go/internal/payments"
	"kansha-backend-go/pkg/cache"
	"kansha-backend-go/pkg/mailer"
	"kansha-backend-go/pkg/messagequeue"
)

func newLogger(release bool) (*zap.Logger, error) {
	if release {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	// --- 1. Load .env for local development ---
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	}

	// --- 2. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	zapLogger, err := newLogger(appConfig.IsRelease())
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Application configuration loaded successfully.",
		zap.String("webhookApplyMode", appConfig.WebhookApplyMode))

	catalog, err := configs.LoadCatalog(appConfig.CatalogPath)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to load catalog", zap.Error(err))
	}

	// --- 3. Initialize Firebase Admin SDK (Firestore and Auth clients) ---
	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInitCtx()
	if err := db.InitFirestore(initCtx, appConfig); err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firestore and Firebase Admin SDK", zap.Error(err))
	}
	defer db.Close()

	firestoreClient := db.GetFirestoreClient()
	firebaseAuthClient := db.GetFirebaseAuthClient()
	if firestoreClient == nil || firebaseAuthClient == nil {
		zapLogger.Fatal("CRITICAL_ERROR: Firebase clients are nil after initialization. Application cannot start.")
	}

	// --- 4. Optional infrastructure ---
	var claims cache.Cache = cache.NewMemoryCache()
	if appConfig.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(initCtx, cache.NewRedisCacheConfig{
			Address:  appConfig.RedisAddr,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
		})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to Redis", zap.Error(err))
		}
		claims = redisCache
	} else {
		zapLogger.Warn("REDIS_ADDR not set; webhook dedup claims are kept in memory.")
	}
	defer claims.Close()

	var queue messagequeue.MessageQueue = messagequeue.NewMemoryQueue(1024)
	if appConfig.RabbitMQURL != "" {
		rabbit, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: appConfig.RabbitMQURL, Prefetch: 1})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to connect to RabbitMQ", zap.Error(err))
		}
		queue = rabbit
	} else if appConfig.WebhookApplyMode == config.ApplyModeQueue {
		zapLogger.Warn("RABBITMQ_URL not set; queued webhook events do not survive a restart.")
	}
	defer queue.Close()

	var alerter core.OperatorAlerter = core.LogAlerter{Logger: zapLogger}
	if appConfig.AlertsEnabled() {
		smtpMailer, err := mailer.NewSMTPMailer(mailer.Config{
			Host:     appConfig.SMTPHost,
			Port:     appConfig.SMTPPort,
			Username: appConfig.SMTPUsername,
			Password: appConfig.SMTPPassword,
			From:     appConfig.SMTPFrom,
		})
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Invalid SMTP configuration", zap.Error(err))
		}
		alerter = &mailer.OpsAlerter{Mailer: smtpMailer, Recipient: appConfig.OpsAlertEmail}
	}

	// --- 5. Initialize Repositories ---
	userRepo := db.NewFirestoreUserRepository(firestoreClient)
	purchaseRepo := db.NewFirestorePurchaseRepository(firestoreClient)
	eventRepo := db.NewFirestoreWebhookEventRepository(firestoreClient)
	deadLetterRepo := db.NewFirestoreDeadLetterRepository(firestoreClient)

	// --- 6. Initialize Services ---
	appMetrics := metrics.New()
	verifier := identity.NewFirebaseVerifier(firebaseAuthClient)
	gate := core.NewAuthGate(userRepo, identity.NewHub(), verifier, zapLogger)
	provider := payments.NewStripeProvider(appConfig.StripeSecretKey)

	reconciler := core.NewReconciler(userRepo, purchaseRepo, provider, alerter, zapLogger)
	policy := core.DefaultRetryPolicy()
	policy.MaxAttempts = appConfig.WebhookMaxAttempts
	policy.InitialBackoff = appConfig.WebhookInitialBackoff
	policy.MaxBackoff = appConfig.WebhookMaxBackoff
	worker := core.NewWebhookWorker(reconciler, eventRepo, deadLetterRepo, policy, alerter, appMetrics, zapLogger)

	var dispatcher core.EventDispatcher = worker
	if appConfig.WebhookApplyMode == config.ApplyModeQueue {
		dispatcher = core.QueueDispatcher{Queue: queue, QueueName: appConfig.WebhookQueueName}
	}

	userService := core.NewUserService(userRepo, gate, zapLogger)
	checkoutService := core.NewCheckoutService(userRepo, provider, catalog, appConfig.ClientURL, appMetrics, zapLogger)
	billingService := core.NewBillingService(userRepo, provider, payments.NewWebhookVerifier(appConfig.StripeWebhookSecret),
		claims, dispatcher, core.WebhookIntakeConfig{DedupTTL: appConfig.WebhookDedupTTL},
		appConfig.ClientURL, appMetrics, zapLogger)
	deadLetterService := core.NewDeadLetterService(worker, deadLetterRepo)
	zapLogger.Info("Core services initialized successfully.")

	// --- 7. Setup Gin HTTP Engine ---
	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(appConfig))

	api.SetupRoutes(router, zapLogger, api.Dependencies{
		Auth:        middleware.NewAuthMiddleware(verifier, zapLogger),
		Users:       userRepo,
		Gate:        gate,
		UserService: userService,
		Checkout:    checkoutService,
		Billing:     billingService,
		DeadLetters: deadLetterService,
		Catalog:     catalog,
		Metrics:     appMetrics,
	})

	// --- 8. Run the HTTP server and the webhook worker until a signal arrives ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if appConfig.WebhookApplyMode == config.ApplyModeQueue {
		g.Go(func() error {
			return worker.Run(gctx, queue, appConfig.WebhookQueueName)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLogger.Error("Server exited with error", zap.Error(err))
		zapLogger.Sync()
		os.Exit(1)
	}
	zapLogger.Info("Server exited gracefully.")
}
