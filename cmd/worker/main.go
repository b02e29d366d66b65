package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/infrastructure/citybikes"
	"github.com/cyclemap/internal/metrics"
	"github.com/cyclemap/internal/pkg/logger"
	"github.com/cyclemap/internal/repository/cache"
	"github.com/cyclemap/internal/worker"
	"github.com/cyclemap/internal/worker/refresh"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Check if worker is enabled
	if !cfg.Worker.Enabled {
		fmt.Println("Worker is disabled in configuration. Set WORKER_ENABLED=true to enable.")
		os.Exit(0)
	}
	// без общего Redis прогревать нечего: у API свой кеш в памяти
	if !cfg.Redis.Enabled {
		fmt.Println("Standalone worker needs the shared Redis cache. Set REDIS_ENABLED=true.")
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting CycleMap cache refresh worker")
	log.Info("Configuration loaded",
		zap.Duration("refresh_interval", cfg.Worker.RefreshInterval),
		zap.Duration("networks_ttl", cfg.Cache.NetworksTTL))

	// 3. Connect to Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	// 4. Initialize repositories
	networkRepo := cache.NewCachedNetworkRepository(
		citybikes.NewClient(&cfg.Upstream, log),
		cache.NewCacheRepository(redisClient),
		cache.NetworkCacheOptions{
			KeyPrefix: cfg.Cache.KeyPrefix,
			ListTTL:   cfg.Cache.NetworksTTL,
			DetailTTL: cfg.Cache.NetworkDetailTTL,
			MaxStale:  cfg.Cache.MaxStale,
		},
		metrics.New(),
		log,
	)

	// 5. Create worker manager and register workers
	workerManager := worker.NewWorkerManager(log)
	workerManager.Register(refresh.NewNetworkRefreshWorker(networkRepo, cfg.Worker.RefreshInterval, log))

	// 6. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workerManager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Received shutdown signal")

	cancel()

	if err := workerManager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}

	log.Info("Worker shutdown complete")
}
