package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/catalog"
	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/repository"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// storage is what the server needs from either store backend
type storage interface {
	repository.TxRunner
	Ping(ctx context.Context) error
	UpsertProducts(ctx context.Context, products []models.Product) error
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pos service",
		zap.String("env", cfg.Server.Env),
		zap.String("storage", cfg.Database.Storage),
		zap.String("lock_backend", cfg.Redis.LockBackend))

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := time.LoadLocation(cfg.Business.VenueTimezone)
	if err != nil {
		logger.Fatal("Unknown venue timezone", zap.String("timezone", cfg.Business.VenueTimezone), zap.Error(err))
	}

	db, closeDB, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer closeDB()

	if cfg.Business.CatalogFile != "" {
		products, err := catalog.LoadFile(cfg.Business.CatalogFile)
		if err != nil {
			logger.Fatal("Failed to load catalog", zap.Error(err))
		}
		if err := db.UpsertProducts(ctx, products); err != nil {
			logger.Fatal("Failed to seed catalog", zap.Error(err))
		}
		logger.Info("Catalog seeded", zap.Int("products", len(products)))
	}

	readiness := []api.Pinger{db}

	var locker service.Locker = lock.NewKeyedMutex()
	var dedup service.Deduplicator = lock.NewDedup()
	if cfg.Redis.LockBackend == config.LockRedis {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		locker = redisClient.NewLocker(cfg.Business.LockTTL)
		dedup = redisClient
		readiness = append(readiness, redisClient)
	}

	var publisher service.Publisher = service.NopPublisher{}
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPOSEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicPOSEvents))
	} else {
		logger.Info("Kafka disabled, lifecycle events are dropped")
	}

	coordinator := service.NewCoordinator(db, locker, dedup, publisher, service.Options{
		Location: location,
		LockWait: cfg.Business.LockWait,
		DedupTTL: cfg.Business.IdempotencyTTL,
	})

	if _, err := coordinator.InitializeTables(ctx, cfg.Business.TableCount); err != nil {
		logger.Fatal("Failed to initialize tables", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(coordinator, readiness...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Kafka.Enabled() {
		alertConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTableAlerts, cfg.Kafka.ConsumerGroup)
		alertWorker := worker.NewAlertWorker(alertConsumer, coordinator)
		g.Go(func() error {
			return alertWorker.Start(gctx)
		})
		defer alertWorker.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

// openStorage connects the configured backend and returns its closer
func openStorage(ctx context.Context, cfg *config.Config) (storage, func(), error) {
	switch cfg.Database.Storage {
	case config.StorageMemory:
		util.GetLogger().Warn("Using in-memory storage, state is lost on restart")
		return store.NewMemory(), func() {}, nil

	case config.StoragePostgres:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		util.GetLogger().Info("Database connected")
		return db, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Database.Storage)
	}
}
