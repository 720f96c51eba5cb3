package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvquang/storefront-core/api/routes"
	"github.com/nvquang/storefront-core/internal/cart"
	"github.com/nvquang/storefront-core/internal/catalog"
	"github.com/nvquang/storefront-core/internal/checkout"
	"github.com/nvquang/storefront-core/internal/notifications"
	"github.com/nvquang/storefront-core/internal/orders"
	"github.com/nvquang/storefront-core/internal/payment"
	"github.com/nvquang/storefront-core/pkg/backend"
	"github.com/nvquang/storefront-core/pkg/config"
	"github.com/nvquang/storefront-core/pkg/localdb"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/metrics"
	"github.com/nvquang/storefront-core/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-core"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront-core",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	registry := prometheus.NewRegistry()
	backendMetrics := metrics.NewBackendCallMetrics(registry)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	cacheClient, err := localdb.New(context.Background(), cfg.Cache, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open local cache", err)
		os.Exit(1)
	}
	defer func() {
		if err := cacheClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing local cache", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	backendClient, err := backend.NewClient(cfg.Backend, logg, backendMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create storefront client", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.Deps{
		Backend:     backendClient,
		Cache:       redisClient,
		DB:          cacheClient.DB(),
		SnapshotTTL: cfg.Cache.SnapshotTTL,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartManager := cart.NewManager(cart.CoordinatorDeps{
		Backend:         backendClient,
		Catalog:         catalogService,
		Logger:          logg,
		SelectAllOnLoad: cfg.Cart.SelectAllOnLoad,
	})

	providers, err := payment.NewRegistry(cfg.Payment)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment registry", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.Deps{
		Backend: backendClient,
		DB:      cacheClient.DB(),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.Deps{
		Backend: backendClient,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.Deps{
		Carts:          cartManager,
		Backend:        backendClient,
		Providers:      providers,
		Reservations:   redisClient,
		Recorder:       ordersService,
		Metrics:        checkoutMetrics,
		Logger:         logg,
		ReservationTTL: cfg.Payment.SessionIdleTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout orchestrator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting storefront core server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Redis:         redisClient,
			CachePinger:   cacheClient,
			CartManager:   cartManager,
			Checkout:      orchestrator,
			Orders:        ordersService,
			Notifications: notificationsService,
			Metrics:       registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "storefront core server stopped unexpectedly", err)
		os.Exit(1)
	}
}
