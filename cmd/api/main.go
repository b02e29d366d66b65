package main

// @title CycleMap API
// @version 1.0.0
// @description Обзор сетей велопроката: список с поиском и фильтром страны, карточки сетей со станциями и серверные сессии просмотра карты.
// @description
// @description Основные возможности:
// @description - Список сетей с поиском по названию и оператору, фильтром страны и пагинацией
// @description - Карточка сети с таблицей станций
// @description - Слои карты в GeoJSON
// @description - Сессии просмотра: карта, список и адрес страницы живут на сервере

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/cyclemap/docs"
	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/countries"
	httpDelivery "github.com/cyclemap/internal/delivery/http"
	"github.com/cyclemap/internal/delivery/http/handler"
	"github.com/cyclemap/internal/domain/repository"
	"github.com/cyclemap/internal/geolocation"
	"github.com/cyclemap/internal/infrastructure/citybikes"
	"github.com/cyclemap/internal/metrics"
	"github.com/cyclemap/internal/pkg/logger"
	"github.com/cyclemap/internal/repository/cache"
	"github.com/cyclemap/internal/usecase"
	"github.com/cyclemap/internal/worker"
	"github.com/cyclemap/internal/worker/refresh"
	"github.com/cyclemap/internal/worker/sweep"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting CycleMap API")
	log.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	m := metrics.New()

	// 3. Response cache: Redis when enabled, in-process LRU otherwise
	var cacheRepo repository.CacheRepository
	var redisClient *cache.Redis
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Failed to close Redis connection", zap.Error(err))
			}
		}()
		cacheRepo = cache.NewCacheRepository(redisClient)
		log.Info("Redis connected")
	} else {
		cacheRepo = cache.NewMemoryRepository(cfg.Cache.LocalCacheSize, log)
		log.Info("Using in-process response cache", zap.Int("size", cfg.Cache.LocalCacheSize))
	}

	// 4. Initialize repositories
	upstream := citybikes.NewClient(&cfg.Upstream, log)
	networkRepo := cache.NewCachedNetworkRepository(upstream, cacheRepo, cache.NetworkCacheOptions{
		KeyPrefix: cfg.Cache.KeyPrefix,
		ListTTL:   cfg.Cache.NetworksTTL,
		DetailTTL: cfg.Cache.NetworkDetailTTL,
		MaxStale:  cfg.Cache.MaxStale,
	}, m, log)

	lookup, err := countries.Load()
	if err != nil {
		log.Fatal("Failed to load countries", zap.Error(err))
	}
	log.Info("Countries loaded", zap.Int("count", lookup.Len()))

	// 5. Optional IP geolocation
	var ipGeo geolocation.Geolocator
	if cfg.GeoIP.DBPath != "" {
		mm, err := geolocation.OpenMaxMind(cfg.GeoIP.DBPath, log)
		if err != nil {
			log.Warn("GeoIP database unavailable, locate falls back to client position only", zap.Error(err))
		} else {
			defer mm.Close()
			ipGeo = mm
			log.Info("GeoIP database opened", zap.String("path", cfg.GeoIP.DBPath))
		}
	}

	// 6. Initialize use cases
	networkUC := usecase.NewNetworkUseCase(networkRepo, lookup, &cfg.Listing, cfg.Cache.NetworkDetailTTL, log)
	sessionUC := usecase.NewSessionUseCase(networkUC, lookup, ipGeo, &cfg.Session, &cfg.Map, &cfg.Listing, m, log)

	// 7. Initialize handlers
	networkHandler := handler.NewNetworkHandler(networkUC, log)
	sessionHandler := handler.NewSessionHandler(sessionUC, log)
	pageHandler, err := handler.NewPageHandler(networkUC, log)
	if err != nil {
		log.Fatal("Failed to parse page templates", zap.Error(err))
	}

	// 8. Create HTTP server
	server := httpDelivery.NewServer(cfg, log, m, networkHandler, sessionHandler, pageHandler)
	if redisClient != nil {
		server.AddHealthCheck("redis", redisClient.Health)
	}

	// 9. Background workers: session sweep, optional in-process cache warming
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerManager := worker.NewWorkerManager(log)
	workerManager.Register(sweep.NewSessionSweepWorker(sessionUC, cfg.Session.SweepInterval, log))
	if cfg.Worker.Enabled {
		workerManager.Register(refresh.NewNetworkRefreshWorker(networkRepo, cfg.Worker.RefreshInterval, log))
	}
	if err := workerManager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	// 10. Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 11. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancel()
	if err := workerManager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
