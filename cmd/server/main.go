package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/cache"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
	grpcServer "github.com/wekeepgrowing/paycore/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/paycore/internal/infrastructure/http"
	providerFactory "github.com/wekeepgrowing/paycore/internal/infrastructure/provider"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	"github.com/wekeepgrowing/paycore/internal/usecase/issuance"
	"github.com/wekeepgrowing/paycore/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger = zapLogger.With(
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
	)

	if cfg.JWT.Secret == "" {
		zapLogger.Warn("JWT secret is empty, staff endpoints will reject every token")
	}

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)
	tx := database.NewTransactor(db, zapLogger)

	redisClient, err := cache.NewRedisClient(cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	lock := cache.NewReconcileLock(redisClient, cfg.Redis.LockTTL, zapLogger)

	providers := providerFactory.NewFactory(cfg.Providers, zapLogger).Registry()

	reconciler := usecase.NewReconcileService(repos, tx, providers, issuance.DefaultRegistry(zapLogger), lock, zapLogger)
	services := httpServer.Services{
		Checkout:   usecase.NewCheckoutService(repos, providers, reconciler, cfg.Payments, zapLogger),
		Reconciler: reconciler,
		Capture:    usecase.NewCaptureService(repos, providers, reconciler, zapLogger),
		Refunds:    usecase.NewRefundService(repos, tx, providers, zapLogger),
		Orders:     usecase.NewOrderQueryService(repos, zapLogger),
	}
	dispatcher := usecase.NewWebhookDispatcher(repos, tx, cfg.Webhooks, zapLogger)
	sweeper := usecase.NewPendingPaymentSweeper(repos.PendingPayments, cfg.Payments, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, zapLogger, db)
	httpSrv := httpServer.NewServer(cfg, zapLogger, db, repos, providers, services)

	var workers sync.WaitGroup
	workers.Add(3)
	go func() {
		defer workers.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		grpcSrv.WatchDatabase(ctx, 0)
	}()

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Stop accepting requests before the workers go away
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	cancel()
	workers.Wait()

	zapLogger.Info("Servers shut down successfully")
}
