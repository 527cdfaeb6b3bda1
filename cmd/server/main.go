// Package main provides the API server entry point for the coin scanner service.
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

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/api"
	"github.com/coinscan/internal/config"
	"github.com/coinscan/internal/logging"
	"github.com/coinscan/internal/pool"
	"github.com/coinscan/internal/price"
	"github.com/coinscan/internal/provenance"
	"github.com/coinscan/internal/service"
	"github.com/coinscan/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	fmt.Println("Coin Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Create data provider with failover
	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create RPC provider")
	}

	chainReader, err := adapter.NewEthereumChainReader(provider, 10, cfg.Chain.CallTimeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create chain reader")
	}

	// Provenance cache: Redis when configured, in-process otherwise
	var provenanceCache provenance.Cache
	if cfg.Database.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Database.Redis.Addr,
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		provenanceCache = provenance.NewRedisCache(redisClient)
		logger.Info("Using Redis provenance cache")
	} else {
		provenanceCache = provenance.NewMemoryCache()
		logger.Info("Using in-process provenance cache")
	}

	// Analysis pipeline
	locator := pool.NewLocator(chainReader, cfg.Platform, cfg.Analysis.ScanWindowBlocks)
	classifier := provenance.NewClassifier(chainReader, locator, provenanceCache, cfg.Platform, cfg.Analysis.MaxRetries)

	dex := adapter.NewDexScreenerClient(cfg.Price.DexScreenerBaseURL, cfg.Chain.Slug, cfg.Price.HTTPTimeout)
	market := adapter.NewMarketClient(cfg.Price.MarketBaseURL, cfg.Chain.Slug, cfg.Price.HTTPTimeout)
	rates := price.NewNativeRate(market, cfg.Price.NativeCoinID, cfg.Price.NativeUSDFallback)
	resolver := price.NewResolver(locator, dex, market, rates, cfg.Price.HTTPTimeout)

	analyzer := service.NewAnalyzer(classifier, resolver, rates, cfg.Analysis)

	// History source: indexed ClickHouse store or the RPC node's transfer API
	var history adapter.HistoryProvider
	if cfg.Chain.HistorySource == "clickhouse" {
		chHistory, err := adapter.NewClickHouseHistoryProvider(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse history store")
		}
		defer chHistory.Close()
		history = chHistory
		logger.Info("Using ClickHouse history provider")
	} else {
		history = adapter.NewAlchemyHistoryProvider(provider, cfg.Chain.CallTimeout*2)
		logger.Info("Using RPC history provider")
	}

	balances := adapter.NewAlchemyBalanceProvider(provider, cfg.Chain.CallTimeout*2)

	// Optional snapshot persistence
	var snapshotRepo *storage.SnapshotRepository
	if cfg.Database.SnapshotsEnabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()
		snapshotRepo = storage.NewSnapshotRepository(postgres.Pool())
		logger.Info("Snapshot persistence enabled")
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    3 * time.Minute, // Analysis responses can be slow on large wallets
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AnalyzeTimeout:  2 * time.Minute,
	}

	server := api.NewServer(serverConfig, analyzer, balances, history, snapshotRepo)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
