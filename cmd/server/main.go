package main

import (
	"context"
	"time"

	"github.com/entbill/entbill/internal/api"
	v1 "github.com/entbill/entbill/internal/api/v1"
	"github.com/entbill/entbill/internal/cache"
	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/postgres"
	"github.com/entbill/entbill/internal/processor"
	"github.com/entbill/entbill/internal/repository"
	"github.com/entbill/entbill/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			provideCache,
			postgres.NewDB,
			provideGateway,

			// Repositories
			repository.NewCustomerRepository,
			repository.NewFeatureRepository,
			repository.NewProductRepository,
			repository.NewCustomerProductRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewBalanceService,
			service.NewContextService,
			service.NewPlanService,
			service.NewExecutorService,
			service.NewConsistencyService,
			service.NewBillingService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration) cache.Cache {
	c := cache.NewInMemoryCache()
	c.SetEnabled(cfg.Cache.Enabled)
	return c
}

func provideGateway(cfg *config.Configuration, log *logger.Logger) processor.Gateway {
	if cfg.Stripe.Enabled && cfg.Stripe.SecretKey != "" {
		return processor.NewStripeGateway(cfg.Stripe.SecretKey, log)
	}
	log.Warnw("stripe disabled, using noop processor gateway")
	return processor.NewNoopGateway(log)
}

func provideHandlers(
	log *logger.Logger,
	billingService service.BillingService,
	balanceService service.BalanceService,
	consistencyService service.ConsistencyService,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(),
		Billing: v1.NewBillingHandler(billingService, log),
		Balance: v1.NewBalanceHandler(balanceService, consistencyService, log),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}
