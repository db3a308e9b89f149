// Package seam composes the base postgres repositories into the narrow
// GrantSource/CycleSource/PriceSource/PricingSource interfaces that
// entitlementevaluator, invoiceassembler, and invoicefinalizer declared as
// placeholders for the subscription/plan join DataStore owns (see each
// package's design notes). Nothing here is new domain logic — it is pure
// composition of repository methods already built.
package seam

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/feature"
	"github.com/usagebilling/core/internal/domain/meter"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/entitlementevaluator"
	"github.com/usagebilling/core/internal/grantsnapshot"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/invoiceassembler"
	"github.com/usagebilling/core/internal/invoicefinalizer"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
	"github.com/usagebilling/core/internal/pricing"
	"github.com/usagebilling/core/internal/types"
)

// GrantSource joins customer-subject grants with subscription-subject
// grants belonging to the customer's current non-terminal subscriptions —
// the two ways spec.md §9's subject model lets a grant reach a customer.
type GrantSource struct {
	db              *postgres.DB
	featureVersions plan.FeatureVersionRepository
	logger          *logger.Logger
}

func NewGrantSource(db *postgres.DB, featureVersions plan.FeatureVersionRepository, log *logger.Logger) entitlementevaluator.GrantSource {
	return &GrantSource{db: db, featureVersions: featureVersions, logger: log}
}

type grantRow struct {
	subscription.Grant
	FPVFeatureType       types.FeatureType     `db:"fpv_feature_type"`
	FPVResetConfig       types.ResetConfig     `db:"fpv_reset_config"`
	FPVAggregationMethod types.AggregationType `db:"fpv_aggregation_method"`
}

func (s *GrantSource) ActiveGrants(ctx context.Context, projectID, customerID, featureID string, asOf int64) ([]*subscription.Grant, []grantsnapshot.FeatureConfig, error) {
	query := `
		SELECT g.*, fpv.feature_type AS fpv_feature_type, fpv.reset_config AS fpv_reset_config,
			fpv.aggregation_method AS fpv_aggregation_method
		FROM grants g
		JOIN feature_plan_versions fpv ON fpv.id = g.feature_plan_version_id
		WHERE fpv.feature_id = :feature_id
			AND g.deleted = false
			AND g.effective_at <= :as_of
			AND (g.expires_at IS NULL OR g.expires_at > :as_of)
			AND (
				(g.subject_type = 'customer' AND g.subject_id = :customer_id)
				OR (g.subject_type = 'subscription' AND g.subject_id IN (
					SELECT id FROM subscriptions
					WHERE project_id = :project_id AND customer_id = :customer_id
						AND status NOT IN ('canceled', 'expired')
				))
			)
		ORDER BY g.priority`

	rows, err := s.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"feature_id":  featureID,
		"as_of":       asOf,
		"customer_id": customerID,
		"project_id":  projectID,
	})
	if err != nil {
		return nil, nil, ierr.WithError(err).WithMessage("failed to list active grants").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var grants []*subscription.Grant
	var configs []grantsnapshot.FeatureConfig
	for rows.Next() {
		var row grantRow
		if err := rows.StructScan(&row); err != nil {
			return nil, nil, ierr.WithError(err).WithMessage("failed to scan grant").Mark(ierr.ErrDependencyMissing)
		}
		g := row.Grant
		grants = append(grants, &g)
		configs = append(configs, grantsnapshot.FeatureConfig{
			GrantID:           g.ID,
			FeatureType:       row.FPVFeatureType,
			ResetConfig:       row.FPVResetConfig,
			AggregationMethod: row.FPVAggregationMethod,
		})
	}
	return grants, configs, nil
}

// CycleSource resolves the billing-cycle window from the customer's
// current active subscription, phase, and plan version.
type CycleSource struct {
	db           *postgres.DB
	phases       subscription.PhaseRepository
	planVersions plan.VersionRepository
	logger       *logger.Logger
}

func NewCycleSource(db *postgres.DB, phases subscription.PhaseRepository, planVersions plan.VersionRepository, log *logger.Logger) entitlementevaluator.CycleSource {
	return &CycleSource{db: db, phases: phases, planVersions: planVersions, logger: log}
}

func (s *CycleSource) Window(ctx context.Context, projectID, customerID, featureID string, now time.Time) (calendar.Window, error) {
	subscriptionID, err := s.activeSubscriptionID(ctx, projectID, customerID)
	if err != nil {
		return calendar.Window{}, err
	}

	phase, err := s.phases.GetActive(ctx, subscriptionID, now.Unix())
	if err != nil {
		return calendar.Window{}, err
	}

	version, err := s.planVersions.Get(ctx, phase.PlanVersionID)
	if err != nil {
		return calendar.Window{}, err
	}

	var trialEndsAt *time.Time
	if phase.TrialEndsAt != nil {
		trialEndsAt = phase.TrialEndsAt
	}

	window, err := calendar.CycleWindow(calendar.Params{
		EffectiveStartDate: phase.StartAt,
		EffectiveEndDate:   phase.EndAt,
		TrialEndsAt:        trialEndsAt,
		Billing: calendar.BillingConfig{
			Interval:      version.Interval,
			IntervalCount: version.IntervalCount,
			Anchor:        version.Anchor,
		},
	}, now)
	if err != nil {
		return calendar.Window{}, err
	}
	if window == nil {
		return calendar.Window{}, ierr.NewError("no billing cycle window covers now").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID, "feature_id": featureID}).
			Mark(ierr.ErrInvalidOperation)
	}
	return *window, nil
}

func (s *CycleSource) activeSubscriptionID(ctx context.Context, projectID, customerID string) (string, error) {
	query := `
		SELECT id FROM subscriptions
		WHERE project_id = :project_id AND customer_id = :customer_id
			AND status NOT IN ('canceled', 'expired')
		ORDER BY created_at DESC
		LIMIT 1`

	rows, err := s.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":  projectID,
		"customer_id": customerID,
	})
	if err != nil {
		return "", ierr.WithError(err).WithMessage("failed to resolve active subscription").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", ierr.NewError("no active subscription for customer").
			WithReportableDetails(map[string]any{"project_id": projectID, "customer_id": customerID}).
			Mark(ierr.ErrNotFound)
	}
	var id string
	if err := rows.Scan(&id); err != nil {
		return "", ierr.WithError(err).WithMessage("failed to scan subscription id").Mark(ierr.ErrDependencyMissing)
	}
	return id, nil
}

// PriceSource delegates straight to price.Repository — entitlementevaluator
// declared its own narrow interface so it doesn't need the rest of
// price.Repository's surface.
type PriceSource struct {
	prices price.Repository
}

func NewPriceSource(prices price.Repository) entitlementevaluator.PriceSource {
	return &PriceSource{prices: prices}
}

func (s *PriceSource) GetByFeaturePlanVersion(ctx context.Context, featurePlanVersionID string) (*price.Price, error) {
	return s.prices.GetByFeaturePlanVersionID(ctx, featurePlanVersionID)
}

// PricingResolver collapses the FeaturePlanVersion -> Feature -> Meter ->
// Price -> active-grants join invoiceassembler and invoicefinalizer both
// declared as a PricingSource seam.
type PricingResolver struct {
	featureVersions plan.FeatureVersionRepository
	features        feature.Repository
	meters          meter.Repository
	prices          price.Repository
	grants          subscription.GrantRepository
	logger          *logger.Logger
}

func NewPricingResolver(
	featureVersions plan.FeatureVersionRepository,
	features feature.Repository,
	meters meter.Repository,
	prices price.Repository,
	grants subscription.GrantRepository,
	log *logger.Logger,
) *PricingResolver {
	return &PricingResolver{
		featureVersions: featureVersions,
		features:        features,
		meters:          meters,
		prices:          prices,
		grants:          grants,
		logger:          log,
	}
}

type resolved struct {
	aggregationMethod types.AggregationType
	eventName         string
	propertyName      string
	featureSlug       string
	grants            []pricing.GrantAllowance
	formula           *price.Price
}

func (r *PricingResolver) resolve(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (resolved, error) {
	fpv, err := r.featureVersions.Get(ctx, featurePlanVersionID)
	if err != nil {
		return resolved{}, err
	}
	feat, err := r.features.Get(ctx, fpv.FeatureID)
	if err != nil {
		return resolved{}, err
	}
	m, err := r.meters.GetMeter(ctx, feat.MeterID)
	if err != nil {
		return resolved{}, err
	}
	formula, err := r.prices.GetByFeaturePlanVersionID(ctx, featurePlanVersionID)
	if err != nil && !ierr.IsNotFound(err) {
		return resolved{}, err
	}

	active, err := r.grants.ListActiveForFeature(ctx, string(types.GrantSubjectTypeSubscription), subscriptionID, featurePlanVersionID)
	if err != nil {
		return resolved{}, err
	}
	// Grants on the item's own FeaturePlanVersion bill against the shared
	// formula (nil Price falls through to it in Waterfall), continuing the
	// same cumulative curve the overage slice picks up from. Only a grant
	// on a *different* FeaturePlanVersion (a promotional override with its
	// own rate) gets a distinct Price looked up here.
	priceCache := map[string]*price.Price{}
	var allowances []pricing.GrantAllowance
	for _, g := range active {
		if g.EffectiveAt > asOf {
			continue
		}
		if g.ExpiresAt != nil && *g.ExpiresAt <= asOf {
			continue
		}
		var grantPrice *price.Price
		if g.FeaturePlanVersionID != featurePlanVersionID {
			var ok bool
			grantPrice, ok = priceCache[g.FeaturePlanVersionID]
			if !ok {
				grantPrice, err = r.prices.GetByFeaturePlanVersionID(ctx, g.FeaturePlanVersionID)
				if err != nil {
					if !ierr.IsNotFound(err) {
						return resolved{}, err
					}
					grantPrice = nil
				}
				priceCache[g.FeaturePlanVersionID] = grantPrice
			}
		}
		allowances = append(allowances, pricing.GrantAllowance{
			GrantID:  g.ID,
			Priority: g.Priority,
			Limit:    g.Limit,
			Price:    grantPrice,
		})
	}

	return resolved{
		aggregationMethod: fpv.AggregationMethod,
		eventName:         m.EventName,
		propertyName:      m.Aggregation.Field,
		featureSlug:       feat.Slug,
		grants:            allowances,
		formula:           formula,
	}, nil
}

func (r *PricingResolver) AssemblerContext(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (invoiceassembler.ItemPricingContext, error) {
	res, err := r.resolve(ctx, subscriptionID, featurePlanVersionID, asOf)
	if err != nil {
		return invoiceassembler.ItemPricingContext{}, err
	}
	return invoiceassembler.ItemPricingContext{
		AggregationMethod: res.aggregationMethod,
		EventName:         res.eventName,
		PropertyName:      res.propertyName,
		Grants:            res.grants,
		Formula:           res.formula,
	}, nil
}

func (r *PricingResolver) FinalizerContext(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (invoicefinalizer.PricingContext, error) {
	res, err := r.resolve(ctx, subscriptionID, featurePlanVersionID, asOf)
	if err != nil {
		return invoicefinalizer.PricingContext{}, err
	}
	return invoicefinalizer.PricingContext{
		AggregationMethod: res.aggregationMethod,
		EventName:         res.eventName,
		PropertyName:      res.propertyName,
		FeatureSlug:       res.featureSlug,
		Grants:            res.grants,
		Formula:           res.formula,
	}, nil
}

// AssemblerAdapter narrows PricingResolver to invoiceassembler.PricingSource.
type AssemblerAdapter struct{ r *PricingResolver }

func NewAssemblerAdapter(r *PricingResolver) invoiceassembler.PricingSource {
	return &AssemblerAdapter{r: r}
}

func (a *AssemblerAdapter) Context(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (invoiceassembler.ItemPricingContext, error) {
	return a.r.AssemblerContext(ctx, subscriptionID, featurePlanVersionID, asOf)
}

// FinalizerAdapter narrows PricingResolver to invoicefinalizer.PricingSource.
type FinalizerAdapter struct{ r *PricingResolver }

func NewFinalizerAdapter(r *PricingResolver) invoicefinalizer.PricingSource {
	return &FinalizerAdapter{r: r}
}

func (a *FinalizerAdapter) Context(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (invoicefinalizer.PricingContext, error) {
	return a.r.FinalizerContext(ctx, subscriptionID, featurePlanVersionID, asOf)
}
