package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/cartiva/pricing-api/internal/handlers"
	"github.com/cartiva/pricing-api/internal/platform/config"
	"github.com/cartiva/pricing-api/internal/platform/events"
	pfirestore "github.com/cartiva/pricing-api/internal/platform/firestore"
	"github.com/cartiva/pricing-api/internal/platform/observability"
	firestoreRepo "github.com/cartiva/pricing-api/internal/repositories/firestore"
	"github.com/cartiva/pricing-api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("pricing-api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	publisher, closePublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	discountRepo, err := firestoreRepo.NewDiscountRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise discount repository", zap.Error(err))
	}
	usageRepo, err := firestoreRepo.NewUsageRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise usage repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	bandRepo, err := firestoreRepo.NewPriceBandRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise price band repository", zap.Error(err))
	}
	recordRepo, err := firestoreRepo.NewApplicationRecordRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise application record repository", zap.Error(err))
	}

	engine, err := services.NewPricingEngine(services.PricingEngineDeps{
		Discounts: discountRepo,
		Usage:     usageRepo,
		Logger:    logger.Named("engine"),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	redemption, err := services.NewRedemptionService(services.RedemptionServiceDeps{
		Discounts: discountRepo,
		Usage:     usageRepo,
		Records:   recordRepo,
		Publisher: publisher,
		Logger:    logger.Named("redemption"),
	})
	if err != nil {
		logger.Fatal("failed to initialise redemption service", zap.Error(err))
	}

	saleCache, err := services.NewActiveSaleCache(services.ActiveSaleCacheDeps{
		Discounts: discountRepo,
		Logger:    logger.Named("sale-cache"),
	})
	if err != nil {
		logger.Fatal("failed to initialise active sale cache", zap.Error(err))
	}
	bandService, err := services.NewPriceBandService(services.PriceBandServiceDeps{
		Catalog:   catalogRepo,
		Bands:     bandRepo,
		Cache:     saleCache,
		Publisher: publisher,
		Logger:    logger.Named("price-bands"),
	})
	if err != nil {
		logger.Fatal("failed to initialise price band service", zap.Error(err))
	}
	sweeper, err := services.NewSweeper(services.SweeperDeps{
		Cache:    saleCache,
		Bands:    bandService,
		Logger:   logger.Named("sweeper"),
		Interval: cfg.Pricing.SweepInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise sweeper", zap.Error(err))
	}

	discountHandlers, err := handlers.NewDiscountHandlers(redemption)
	if err != nil {
		logger.Fatal("failed to initialise discount handlers", zap.Error(err))
	}
	bandHandlers, err := handlers.NewPriceBandHandlers(bandService)
	if err != nil {
		logger.Fatal("failed to initialise price band handlers", zap.Error(err))
	}
	orderHandlers, err := handlers.NewOrderHandlers(engine, redemption)
	if err != nil {
		logger.Fatal("failed to initialise order handlers", zap.Error(err))
	}
	health := handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
		"firestore": func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		},
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(routerMiddlewares(cfg, logger)...),
		handlers.WithHealth(health),
		handlers.WithDiscountRoutes(discountHandlers.Register),
		handlers.WithPriceBandRoutes(bandHandlers.Register),
		handlers.WithOrderRoutes(orderHandlers.Register),
		handlers.WithSweeper(sweeper),
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Features.EnablePriceBandSweep {
		go sweeper.Run(runCtx)
	} else {
		logger.Info("price band sweep disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

func routerMiddlewares(cfg config.Config, logger *zap.Logger) []func(http.Handler) http.Handler {
	return append(
		handlers.DefaultMiddlewares(),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.InjectLoggerMiddleware(logger),
		observability.RequestLoggerMiddleware(),
	)
}

// newPublisher builds the Pub/Sub publisher, or a noop when publishing is
// disabled by configuration.
func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.PubSub.DisablePublishing || !cfg.Features.EnableEventPublish {
		logger.Info("event publishing disabled")
		return events.NoopPublisher{}, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := events.NewPubSubPublisher(events.PubSubPublisherDeps{
		DiscountTopic:  client.Topic(cfg.PubSub.DiscountTopic),
		PriceBandTopic: client.Topic(cfg.PubSub.PriceBandTopic),
		PublishTimeout: cfg.PubSub.PublishTimeout,
		Logger:         logger.Named("events"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, closeFn, nil
}
