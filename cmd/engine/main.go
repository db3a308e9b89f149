// Command engine runs the usage-billing lifecycle core: no HTTP/RPC surface
// (an explicit non-goal), just the five periodic sweeps of spec.md §4.11
// plus the EntitlementEvaluator's verify/reportUsage path, which a caller
// reaches in-process or via whatever transport wraps this module.
package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/cache"
	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/domain/proration"
	"github.com/usagebilling/core/internal/entitlementevaluator"
	"github.com/usagebilling/core/internal/invoiceassembler"
	"github.com/usagebilling/core/internal/invoicefinalizer"
	"github.com/usagebilling/core/internal/kafka"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/paymentcollector"
	"github.com/usagebilling/core/internal/periodmaterializer"
	"github.com/usagebilling/core/internal/postgres"
	"github.com/usagebilling/core/internal/provider"
	"github.com/usagebilling/core/internal/repository"
	"github.com/usagebilling/core/internal/repository/seam"
	"github.com/usagebilling/core/internal/scheduler"
	"github.com/usagebilling/core/internal/subscriptionmachine"
	"github.com/usagebilling/core/internal/usage"
	"github.com/usagebilling/core/internal/usagemeter"
)

func init() {
	time.Local = time.UTC
}

func main() {
	fx.New(
		fx.Provide(
			// Ambient stack
			config.NewConfig,
			logger.NewLogger,
			postgres.NewDB,
			cache.New,
			kafka.NewProducer,
			kafka.NewAuditSink,
			provideUsageStore,
			providePaymentProvider,
			proration.NewCalculator,
			provideSchedulerConfig,

			// Repositories (DataStore)
			repository.NewCustomerRepository,
			repository.NewSubscriptionRepository,
			repository.NewSubscriptionPhaseRepository,
			repository.NewBillingPeriodRepository,
			repository.NewSubscriptionPauseRepository,
			repository.NewSubscriptionItemRepository,
			repository.NewGrantRepository,
			repository.NewSubscriptionLockRepository,
			repository.NewPlanRepository,
			repository.NewPlanVersionRepository,
			repository.NewFeatureVersionRepository,
			repository.NewFeatureRepository,
			repository.NewMeterRepository,
			repository.NewPriceRepository,
			repository.NewEntitlementRepository,
			repository.NewCreditGrantRepository,
			repository.NewCreditGrantApplicationRepository,
			repository.NewInvoiceRepository,
			repository.NewInvoiceLineItemRepository,

			// DataStore seams onto the subscription/plan join
			seam.NewGrantSource,
			seam.NewCycleSource,
			seam.NewPriceSource,
			seam.NewPricingResolver,
			seam.NewAssemblerAdapter,
			seam.NewFinalizerAdapter,

			// Core engine components, in dependency order
			usagemeter.New,
			entitlementevaluator.New,
			usage.New,
			periodmaterializer.New,
			invoiceassembler.New,
			invoicefinalizer.New,
			provideEventEmitter,
			paymentcollector.New,
			subscriptionmachine.New,
			scheduler.New,
		),
		fx.Invoke(runEngine),
	).Run()
}

// provideUsageStore pins analytics.NewClickHouseStore's concrete return type
// to the analytics.UsageStore interface every consumer actually depends on,
// the same way internal/repository/factory.go pins each repository
// constructor to its domain interface.
func provideUsageStore(cfg *config.Configuration) (analytics.UsageStore, error) {
	return analytics.NewClickHouseStore(cfg)
}

func providePaymentProvider(cfg *config.Configuration, log *logger.Logger) provider.PaymentProvider {
	return provider.NewStripeProvider(cfg, log)
}

func provideSchedulerConfig(cfg *config.Configuration) config.SchedulerConfig {
	return cfg.Scheduler
}

// provideEventEmitter pins SubscriptionMachine to PaymentCollector's
// EventEmitter seam, so PaymentCollector can report PAYMENT_SUCCESS/
// PAYMENT_FAILURE back onto a subscription's machine without
// paymentcollector importing subscriptionmachine.
func provideEventEmitter(m *subscriptionmachine.Machine) paymentcollector.EventEmitter {
	return m
}

// runEngine validates configuration, then starts and stops the scheduler's
// cron runner and the connections it and EntitlementEvaluator depend on
// around the fx lifecycle.
func runEngine(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	db *postgres.DB,
	producer *kafka.Producer,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting scheduler")
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping scheduler")
			sched.Stop()
			if err := producer.Close(); err != nil {
				log.Errorw("close kafka producer", "error", err)
			}
			db.Close()
			return nil
		},
	})
	return nil
}
