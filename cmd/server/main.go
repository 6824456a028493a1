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

	"inventory-service/config"
	"inventory-service/internal/api"
	"inventory-service/internal/broker"
	"inventory-service/internal/cart"
	"inventory-service/internal/redisclient"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"
	"inventory-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting inventory service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TracingEnabled)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Store.Driver))

	notifier := service.NewNotifier()
	var committerOpts []service.CommitterOption
	committerOpts = append(committerOpts, service.WithCommitTimeout(cfg.Business.CommitTimeout))

	var catalogCache service.CatalogCache
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		catalogCache = redisClient
		committerOpts = append(committerOpts, service.WithIdempotencyCache(redisClient, cfg.Business.IdempotencyTTL))
	}

	catalogService := service.NewCatalogService(st, st, catalogCache, cfg.Business.CatalogCacheTTL)
	catalogService.SetDefaultThreshold(cfg.Business.LowStockThreshold)
	committer := service.NewSaleCommitter(st, st, notifier, committerOpts...)
	ledger := service.NewProfitLedger(st, notifier)
	stats := service.NewStatsAggregator(st)

	registry := cart.NewRegistry(cfg.Business.CartSessionTTL)
	carts := service.NewCartSessions(registry, st, committer)

	notifier.Subscribe(catalogService.Observer())
	notifier.Subscribe(func(ctx context.Context, change service.LedgerChange) {
		if change.Kind != service.ChangeSale {
			return
		}
		if total, err := ledger.CurrentTotal(ctx); err == nil {
			f, _ := total.Float64()
			util.ProfitLedgerTotal.Set(f)
		}
	})

	if err := catalogService.WarmSaleCatalog(context.Background()); err != nil {
		logger.Warn("Failed to warm sale catalog cache", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var alertWorker *worker.StockAlertWorker
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvents)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicSaleEvents))

		notifier.Subscribe(broker.NewEventPublisher(producer).Observer())

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvents, cfg.Kafka.ConsumerGroup)
		alertWorker = worker.NewStockAlertWorker(consumer, st)
		go func() {
			if err := alertWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Stock alert worker error", zap.Error(err))
			}
		}()
	}

	go carts.RunSweeper(workerCtx, cfg.Business.CartSweepInterval)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog:   catalogService,
		Committer: committer,
		Ledger:    ledger,
		Stats:     stats,
		Carts:     carts,
		Store:     st,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			logger.Warn("Failed to stop stock alert worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openStore returns the configured store, migrated and ready
func openStore(cfg *config.Config) (service.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		db, err := store.NewStore(cfg.Store.URL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
