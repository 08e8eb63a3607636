package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/config"
	"github.com/wekeepgrowing/paycore/internal/infrastructure/database"
	"github.com/wekeepgrowing/paycore/pkg/logger"
)

func main() {
	fixturesPath := flag.String("fixtures", "configs/fixtures.yaml", "path to the store fixtures file")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the printed staff tokens")
	flag.Parse()

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

	fixtures, err := loadFixtures(*fixturesPath)
	if err != nil {
		zapLogger.Fatal("Failed to load fixtures", zap.String("path", *fixturesPath), zap.Error(err))
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

	// Run migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)

	result, err := applyFixtures(context.Background(), repos, fixtures, tokenOptions{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    *tokenTTL,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to seed fixtures", zap.Error(err))
	}

	zapLogger.Info("Seed completed",
		zap.Int("stores", result.Stores),
		zap.Int("provider_configs", result.Providers),
		zap.Int("webhooks_created", result.Webhooks))

	if cfg.JWT.Secret == "" {
		zapLogger.Warn("JWT secret is empty, no staff tokens issued")
		return
	}
	for _, t := range result.Tokens {
		fmt.Printf("%s\t%s\t%s\t%s\n", t.StoreSlug, t.StaffID, t.Role, t.Token)
	}
}
