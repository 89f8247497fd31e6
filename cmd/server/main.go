package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reward-service/config"
	"reward-service/internal/api"
	"reward-service/internal/broker"
	"reward-service/internal/redisclient"
	"reward-service/internal/service"
	"reward-service/internal/store"
	"reward-service/internal/util"
	"reward-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	tp, err := util.InitTracer("reward-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	bus := broker.NewBus(producer)

	classifier := service.NewHTTPClassifier(cfg.Classifier.URL,
		time.Duration(cfg.Classifier.TimeoutSecs)*time.Second)

	var compliance *service.ComplianceChecker
	if cfg.Compliance.URL != "" {
		gateway := service.NewHTTPCompliance(cfg.Compliance.URL,
			time.Duration(cfg.Compliance.TimeoutSecs)*time.Second)
		compliance = service.NewComplianceChecker(gateway)
	} else {
		// No external moderation endpoint configured, heuristic only.
		compliance = service.NewComplianceChecker(nil)
	}

	var media service.MediaStorage
	if cfg.Media.CloudinaryURL != "" {
		media, err = service.NewCloudinaryStorage(cfg.Media.CloudinaryURL, cfg.Media.UploadFolder)
		if err != nil {
			logger.Fatal("Failed to initialize media storage", zap.Error(err))
		}
	}

	ledger := service.NewPointsLedger(db, redisClient, bus)
	scans := service.NewScanLifecycle(db, classifier, media, ledger, bus,
		cfg.Classifier.MinConfidence)
	listings := service.NewListingLifecycle(db, compliance, redisClient, bus)
	orders := service.NewOrderCoordinator(db, redisClient, ledger, bus)
	review := service.NewReviewQueue(db, redisClient, ledger, bus)
	migrator := service.NewGuestMigrator(db, redisClient, ledger, bus)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	defer consumer.Close()

	notifier := worker.NewNotificationWorker(consumer, db)
	go func() {
		if err := notifier.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Notification worker stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	handler := api.NewHandler(scans, listings, orders, review, migrator, ledger, db, cfg.Auth.JWTSecret)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
