package repository

import (
	"github.com/usagebilling/core/internal/domain/creditgrant"
	"github.com/usagebilling/core/internal/domain/creditgrantapplication"
	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/feature"
	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/domain/meter"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/domain/subscriptionlock"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
	pgRepo "github.com/usagebilling/core/internal/repository/postgres"
	"go.uber.org/fx"
)

// RepositoryParams holds the dependencies every postgres repository needs.
type RepositoryParams struct {
	fx.In

	Logger *logger.Logger
	DB     *postgres.DB
}

func NewCustomerRepository(p RepositoryParams) customer.Repository {
	return pgRepo.NewCustomerRepository(p.DB, p.Logger)
}

func NewSubscriptionRepository(p RepositoryParams) subscription.Repository {
	return pgRepo.NewSubscriptionRepository(p.DB, p.Logger)
}

func NewSubscriptionPhaseRepository(p RepositoryParams) subscription.PhaseRepository {
	return pgRepo.NewPhaseRepository(p.DB, p.Logger)
}

func NewBillingPeriodRepository(p RepositoryParams) subscription.BillingPeriodRepository {
	return pgRepo.NewBillingPeriodRepository(p.DB, p.Logger)
}

func NewSubscriptionPauseRepository(p RepositoryParams) subscription.PauseRepository {
	return pgRepo.NewPauseRepository(p.DB, p.Logger)
}

func NewSubscriptionItemRepository(p RepositoryParams) subscription.ItemRepository {
	return pgRepo.NewItemRepository(p.DB, p.Logger)
}

func NewGrantRepository(p RepositoryParams) subscription.GrantRepository {
	return pgRepo.NewGrantRepository(p.DB, p.Logger)
}

func NewSubscriptionLockRepository(p RepositoryParams) subscriptionlock.Repository {
	return pgRepo.NewSubscriptionLockRepository(p.DB, p.Logger)
}

func NewPlanRepository(p RepositoryParams) plan.Repository {
	return pgRepo.NewPlanRepository(p.DB, p.Logger)
}

func NewPlanVersionRepository(p RepositoryParams) plan.VersionRepository {
	return pgRepo.NewPlanVersionRepository(p.DB, p.Logger)
}

func NewFeatureVersionRepository(p RepositoryParams) plan.FeatureVersionRepository {
	return pgRepo.NewFeatureVersionRepository(p.DB, p.Logger)
}

func NewFeatureRepository(p RepositoryParams) feature.Repository {
	return pgRepo.NewFeatureRepository(p.DB, p.Logger)
}

func NewMeterRepository(p RepositoryParams) meter.Repository {
	return pgRepo.NewMeterRepository(p.DB, p.Logger)
}

func NewPriceRepository(p RepositoryParams) price.Repository {
	return pgRepo.NewPriceRepository(p.DB, p.Logger)
}

func NewEntitlementRepository(p RepositoryParams) entitlement.Repository {
	return pgRepo.NewEntitlementRepository(p.DB, p.Logger)
}

func NewCreditGrantRepository(p RepositoryParams) creditgrant.Repository {
	return pgRepo.NewCreditGrantRepository(p.DB, p.Logger)
}

func NewCreditGrantApplicationRepository(p RepositoryParams) creditgrantapplication.Repository {
	return pgRepo.NewCreditGrantApplicationRepository(p.DB, p.Logger)
}

func NewInvoiceRepository(p RepositoryParams) invoice.Repository {
	return pgRepo.NewInvoiceRepository(p.DB, p.Logger)
}

func NewInvoiceLineItemRepository(p RepositoryParams) invoice.LineItemRepository {
	return pgRepo.NewLineItemRepository(p.DB, p.Logger)
}
