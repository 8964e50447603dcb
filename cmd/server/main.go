package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-core/config"
	"retail-core/internal/api"
	"retail-core/internal/auth"
	"retail-core/internal/broker"
	"retail-core/internal/redisclient"
	"retail-core/internal/service"
	"retail-core/internal/store"
	"retail-core/internal/store/memory"
	"retail-core/internal/util"
	"retail-core/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const serviceName = "retail-core"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting retail core")

	// money goes out as plain JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	tp, err := util.InitTracer(serviceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	ctx := context.Background()

	var repo store.Repository
	switch cfg.Database.Driver {
	case "memory":
		repo = memory.New()
		log.Println("Using in-memory store")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatalf("Failed to apply schema: %v", err)
			}
		}
		repo = db
		log.Println("Database connected")
	}

	var (
		cache       service.StockCache
		idempotency service.IdempotencyStore
		limiter     api.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		cache, idempotency, limiter = redisClient, redisClient, redisClient
		log.Println("Redis connected")
	}

	projector := service.NewStatsProjector(repo)

	var sink broker.Sink
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		sink = producer
		log.Println("Kafka producer initialized")
	} else {
		sink = broker.NewLocalSink(worker.Handler(projector))
		log.Println("Kafka disabled, events handled in-process")
	}
	eventPublisher := broker.NewEventPublisher(sink)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	inventoryClient := service.NewInventoryClient(repo, cache, eventPublisher)
	services := api.Services{
		Products:  service.NewProductService(repo, inventoryClient, cfg.Business.DefaultLowStockThreshold),
		Customers: service.NewCustomerService(repo),
		Orders: service.NewOrderService(repo, inventoryClient, idempotency, eventPublisher,
			cfg.Business.ExchangeRate, cfg.Business.MaxEditHistory),
		Returns:   service.NewReturnService(repo, inventoryClient, eventPublisher),
		Invoices:  service.NewInvoiceService(repo, eventPublisher, cfg.Business.ExchangeRate),
		Expenses:  service.NewExpenseService(repo, eventPublisher),
		Analytics: service.NewAnalyticsService(repo, cfg.Business.ReportingExchangeRate),
		Users:     service.NewUserService(repo, tokens, cfg.Auth.RefreshTTL, cfg.Auth.ProtectedAdminEmails),
	}

	if err := inventoryClient.SyncAll(ctx); err != nil {
		log.Printf("Failed to sync inventory to Redis: %v", err)
	}
	if err := services.Users.EnsureAdmin(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword); err != nil {
		log.Fatalf("Failed to bootstrap admin: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var statsWorker *worker.StatsWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		statsWorker = worker.NewStatsWorker(consumer, projector)
		go func() {
			if err := statsWorker.Start(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Stats worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
		AuthLimit:   cfg.Auth.AuthRateLimit,
		APILimit:    cfg.Auth.APIRateLimit,
		LimitWindow: cfg.Auth.RateLimitWindow,
		Ready:       repo,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if statsWorker != nil {
		statsWorker.Stop()
	}

	log.Println("Server exited")
}
