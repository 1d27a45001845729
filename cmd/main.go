package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/kodama/internal/config"
	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/http"
	"github.com/davidbz/kodama/internal/http/middleware"
	"github.com/davidbz/kodama/internal/observability"
	"github.com/davidbz/kodama/internal/provider/registry"
	"github.com/davidbz/kodama/internal/provider/runware"
	"github.com/davidbz/kodama/internal/provider/sample"
	memorystore "github.com/davidbz/kodama/internal/store/memory"
	redisstore "github.com/davidbz/kodama/internal/store/redis"
)

func main() {
	container := buildContainer()

	// Background retention cleanup (invoked for side effects).
	err := container.Invoke(func(store domain.AccountStore, storageCfg *config.StorageConfig) {
		go runCleanup(store, storageCfg)
	})
	if err != nil {
		log.Fatalf("Failed to start cleanup worker: %v", err)
	}

	err = container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}
	if err := container.Provide(func(bus *observability.EventBus) domain.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}

	// Model Catalog
	if err := container.Provide(registry.Builtin); err != nil {
		log.Fatalf("Failed to provide model registry: %v", err)
	}
	if err := container.Provide(func(reg *registry.Registry) domain.ModelCatalog {
		return reg
	}); err != nil {
		log.Fatalf("Failed to provide model catalog: %v", err)
	}

	// Account Store
	if err := container.Provide(func(cfg *config.RedisConfig) domain.AccountStore {
		if cfg.Addr == "" {
			return memorystore.NewAccountStore()
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return redisstore.NewAccountStore(client)
	}); err != nil {
		log.Fatalf("Failed to provide account store: %v", err)
	}

	// Generation Provider
	if err := container.Provide(func(cfg *runware.Config, reg *registry.Registry) domain.Provider {
		if cfg.APIKey == "" {
			return sample.NewProvider(reg)
		}
		return runware.NewProvider(*cfg, reg)
	}); err != nil {
		log.Fatalf("Failed to provide generation provider: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(catalog domain.ModelCatalog) *domain.CostEstimator {
		return domain.NewCostEstimator(catalog, domain.DefaultObservationWindow)
	}); err != nil {
		log.Fatalf("Failed to provide cost estimator: %v", err)
	}
	if err := container.Provide(func(
		reg *registry.Registry,
		cfg *config.PricingConfig,
		publisher domain.EventPublisher,
	) *domain.PricingEngine {
		return domain.NewPricingEngine(reg.Names(""), domain.PricingParams{
			DefaultMarkupPercent:  cfg.DefaultMarkupPercent,
			ExchangeRate:          cfg.ExchangeRate,
			CreditsPerDisplayUnit: cfg.CreditsPerDisplayUnit,
		}, publisher)
	}); err != nil {
		log.Fatalf("Failed to provide pricing engine: %v", err)
	}
	if err := container.Provide(func(store domain.AccountStore, cfg *config.CreditsConfig) *domain.CreditLedger {
		return domain.NewCreditLedger(store, cfg.StartingGrant)
	}); err != nil {
		log.Fatalf("Failed to provide credit ledger: %v", err)
	}
	if err := container.Provide(domain.NewGenerationRecorder); err != nil {
		log.Fatalf("Failed to provide generation recorder: %v", err)
	}
	if err := container.Provide(func(
		catalog domain.ModelCatalog,
		provider domain.Provider,
		estimator *domain.CostEstimator,
		pricing *domain.PricingEngine,
		ledger *domain.CreditLedger,
		recorder *domain.GenerationRecorder,
		cfg *config.PollingConfig,
	) *domain.GenerationService {
		svc := domain.NewGenerationService(catalog, provider, estimator, pricing, ledger, recorder)
		return svc.WithPolling(cfg.Attempts, time.Duration(cfg.IntervalSeconds)*time.Second)
	}); err != nil {
		log.Fatalf("Failed to provide generation service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// runCleanup purges generation records past their retention expiry.
func runCleanup(store domain.AccountStore, cfg *config.StorageConfig) {
	interval := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		purged, err := store.PurgeExpired(ctx, time.Now())
		logger := observability.FromContext(ctx)
		if err != nil {
			logger.Error("retention cleanup failed", zap.Error(err))
		} else if purged > 0 {
			logger.Info("retention cleanup completed", zap.Int("purged", purged))
		}
		cancel()
	}
}
