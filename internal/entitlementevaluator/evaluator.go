// Package entitlementevaluator implements EntitlementEvaluator (spec.md
// §4.5): the public verify/reportUsage contract the API surface calls on
// every usage-gated request. It composes GrantSnapshot, UsageMeter, and
// waterfall pricing behind a cache-fenced entitlement read.
package entitlementevaluator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/cache"
	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/feature"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/grantsnapshot"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/pricing"
	"github.com/usagebilling/core/internal/types"
	"github.com/usagebilling/core/internal/usagemeter"
)

// EntitlementCacheTTL bounds how long a built entitlement snapshot is
// served from cache before a read falls through to the repository; the
// version fence in the cache key (see internal/cache.EntitlementCacheKey)
// means a stale hit is impossible, so this is only a memory-pressure knob.
const EntitlementCacheTTL = 5 * time.Minute

// GrantSource resolves a customer's active grants for one feature, along
// with each grant's resolved FeatureConfig for GrantSnapshot.Validate. This
// is the seam between EntitlementEvaluator and the subscription/plan
// domain's customer → subscription → phase → FeaturePlanVersion join,
// which is owned by the repository layer, not by this package.
type GrantSource interface {
	ActiveGrants(ctx context.Context, projectID, customerID, featureID string, asOf int64) ([]*subscription.Grant, []grantsnapshot.FeatureConfig, error)
}

// CycleSource resolves the billing-cycle window a feature's usage resets
// against. Like GrantSource, this is a seam onto the subscription/plan
// domain's billing config, which EntitlementEvaluator does not own.
type CycleSource interface {
	Window(ctx context.Context, projectID, customerID, featureID string, now time.Time) (calendar.Window, error)
}

// PriceSource resolves the pricing formula a grant's FeaturePlanVersion
// charges overage against.
type PriceSource interface {
	GetByFeaturePlanVersion(ctx context.Context, featurePlanVersionID string) (*price.Price, error)
}

// AuditSink records a verify outcome for asynchronous analytics ingestion;
// Record must not block the caller.
type AuditSink interface {
	Record(ctx context.Context, rec VerifyAudit)
}

// VerifyAudit is the audit record spec.md §4.5 requires for every verify
// call.
type VerifyAudit struct {
	ProjectID   string
	CustomerID  string
	FeatureSlug string
	Allowed     bool
	Usage       float64
	Now         time.Time
}

type Evaluator struct {
	entitlements entitlement.Repository
	features     feature.Repository
	grants       GrantSource
	cycles       CycleSource
	prices       PriceSource
	meter        *usagemeter.Meter
	cache        cache.Cache
	audit        AuditSink
	logger       *logger.Logger
}

func New(
	entitlements entitlement.Repository,
	features feature.Repository,
	grants GrantSource,
	cycles CycleSource,
	prices PriceSource,
	meter *usagemeter.Meter,
	c cache.Cache,
	audit AuditSink,
	log *logger.Logger,
) *Evaluator {
	return &Evaluator{
		entitlements: entitlements,
		features:     features,
		grants:       grants,
		cycles:       cycles,
		prices:       prices,
		meter:        meter,
		cache:        c,
		audit:        audit,
		logger:       log,
	}
}

// VerifyRequest is verify's input per spec.md §4.5.
type VerifyRequest struct {
	CustomerID  string
	FeatureSlug string
	Now         time.Time
	FromCache   bool
}

// VerifyResult is verify's output per spec.md §4.5.
type VerifyResult struct {
	Allowed      bool
	DeniedReason usagemeter.DeniedReason
	Remaining    *int64
	Limit        *int64
	Usage        float64
	FeatureType  types.FeatureType
	Cost         *decimal.Decimal
	Latency      time.Duration
}

// Verify implements spec.md §4.5's verify algorithm: fetch-or-build the
// entitlement, reconcile its meter, and derive the remaining allowance
// (plus, for usage/tier features, the waterfall-priced cost of the
// request's current usage).
func (e *Evaluator) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	start := time.Now()
	projectID := types.GetProjectID(ctx)

	ent, err := e.fetchOrBuild(ctx, projectID, req.CustomerID, req.FeatureSlug, req.Now, req.FromCache)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Allowed:     true,
		Remaining:   ent.Remaining(),
		Limit:       ent.Limit,
		Usage:       ent.Meter.Usage,
		FeatureType: ent.FeatureType,
	}

	if ent.Limit != nil && ent.HardLimit && ent.Meter.Usage > float64(*ent.Limit) {
		result.Allowed = false
		result.DeniedReason = usagemeter.DeniedLimitExceeded
		e.logger.Debugw("verify denied: hard limit exceeded",
			"customer_id", req.CustomerID, "feature_slug", req.FeatureSlug, "usage", ent.Meter.Usage, "limit", *ent.Limit)
	}

	if ent.FeatureType == types.FeatureTypeUsage || ent.FeatureType == types.FeatureTypeTier {
		cost, err := e.waterfallCost(ctx, ent)
		if err != nil {
			return VerifyResult{}, err
		}
		result.Cost = &cost
	}

	result.Latency = time.Since(start)

	if e.audit != nil {
		go e.audit.Record(context.WithoutCancel(ctx), VerifyAudit{
			ProjectID: projectID, CustomerID: req.CustomerID, FeatureSlug: req.FeatureSlug,
			Allowed: result.Allowed, Usage: result.Usage, Now: req.Now,
		})
	}

	return result, nil
}

// ReportUsageRequest is reportUsage's input per spec.md §4.5/§4.4.
type ReportUsageRequest struct {
	CustomerID     string
	FeatureSlug    string
	Usage          float64
	IdempotenceKey string
	Now            time.Time
}

// ReportUsageResult is reportUsage's output per spec.md §4.5/§4.4.
type ReportUsageResult struct {
	Allowed           bool
	DeniedReason      usagemeter.DeniedReason
	Remaining         *int64
	Usage             float64
	Cost              *decimal.Decimal
	NotifiedOverLimit bool
}

// ReportUsage implements spec.md §4.5's reportUsage: fetch-or-build the
// entitlement, apply UsageMeter.reportUsage (reconcile + idempotent
// delta application), persist, and return the derived remaining/cost.
func (e *Evaluator) ReportUsage(ctx context.Context, req ReportUsageRequest) (ReportUsageResult, error) {
	projectID := types.GetProjectID(ctx)

	ent, err := e.fetchOrBuild(ctx, projectID, req.CustomerID, req.FeatureSlug, req.Now, false)
	if err != nil {
		return ReportUsageResult{}, err
	}

	src, err := e.meterSource(ctx, projectID, req.CustomerID, req.FeatureSlug, ent, req.Now)
	if err != nil {
		return ReportUsageResult{}, err
	}

	meterResult, err := e.meter.ReportUsage(ctx, ent, src, req.Usage, req.IdempotenceKey, req.Now)
	if err != nil {
		return ReportUsageResult{}, err
	}

	result := ReportUsageResult{
		Allowed:           meterResult.Allowed,
		DeniedReason:      meterResult.DeniedReason,
		Remaining:         meterResult.Remaining,
		Usage:             meterResult.Usage,
		NotifiedOverLimit: meterResult.NotifiedOverLimit,
	}

	if meterResult.Allowed && (ent.FeatureType == types.FeatureTypeUsage || ent.FeatureType == types.FeatureTypeTier) {
		cost, err := e.waterfallCost(ctx, ent)
		if err != nil {
			return ReportUsageResult{}, err
		}
		result.Cost = &cost
	}

	if err := e.entitlements.Update(ctx, ent); err != nil {
		return ReportUsageResult{}, err
	}
	e.cache.Set(ctx, cache.EntitlementCacheKey(req.CustomerID, req.FeatureSlug, ent.Version), ent, EntitlementCacheTTL)

	return result, nil
}

// fetchOrBuild loads the entitlement row and, only when fromCache is
// requested, returns a cached entitlement under that row's version-fenced
// key; otherwise (or on a miss) it rebuilds from the repository and
// GrantSnapshot, reconciling the meter before returning.
func (e *Evaluator) fetchOrBuild(ctx context.Context, projectID, customerID, featureSlug string, now time.Time, fromCache bool) (*entitlement.Entitlement, error) {
	ent, err := e.entitlements.GetByCustomerFeature(ctx, projectID, customerID, featureSlug)
	if err != nil {
		return nil, err
	}

	feat, err := e.features.GetBySlug(ctx, projectID, featureSlug)
	if err != nil {
		return nil, err
	}

	if fromCache {
		if cached, ok := e.cache.Get(ctx, cache.EntitlementCacheKey(customerID, featureSlug, ent.Version)); ok {
			if hit, ok := cached.(*entitlement.Entitlement); ok {
				return hit, nil
			}
		}
	}

	grants, configs, err := e.grants.ActiveGrants(ctx, projectID, customerID, feat.ID, now.Unix())
	if err != nil {
		return nil, err
	}
	if err := grantsnapshot.Validate(configs); err != nil {
		return nil, err
	}

	merged, err := grantsnapshot.Merge(grants, now.Unix(), ent.FeatureType, ent.ResetConfig, ent.AggregationMethod)
	if err != nil {
		return nil, err
	}

	if merged.Version != ent.Version {
		ent.Limit = merged.Limit
		ent.HardLimit = merged.HardLimit
		ent.Grants = merged.Grants
		ent.Version = merged.Version
	}

	src, err := e.meterSource(ctx, projectID, customerID, featureSlug, ent, now)
	if err != nil {
		return nil, err
	}
	if _, err := e.meter.Reconcile(ctx, ent, src, now); err != nil {
		return nil, err
	}

	e.cache.Set(ctx, cache.EntitlementCacheKey(customerID, featureSlug, ent.Version), ent, EntitlementCacheTTL)
	return ent, nil
}

func (e *Evaluator) meterSource(ctx context.Context, projectID, customerID, featureSlug string, ent *entitlement.Entitlement, now time.Time) (usagemeter.Source, error) {
	var window usagemeter.Window
	if ent.ResetConfig == types.ResetConfigBillingPeriod {
		w, err := e.cycles.Window(ctx, projectID, customerID, featureSlug, now)
		if err != nil {
			return usagemeter.Source{}, err
		}
		window = usagemeter.Window{Start: w.Start, End: w.End}
	}
	return usagemeter.Source{
		EventName:          featureSlug,
		ExternalCustomerID: customerID,
		Window:             window,
	}, nil
}

// waterfallCost prices the entitlement's current-cycle usage against its
// merged grant allowances, charging the overage against the base (lowest
// priority, typically the subscription) grant's formula. Grant-covered
// quantity is priced at the formula too, except on a grant whose
// FeaturePlanVersion differs from the base one, which uses that version's
// own price.
func (e *Evaluator) waterfallCost(ctx context.Context, ent *entitlement.Entitlement) (decimal.Decimal, error) {
	if len(ent.Grants) == 0 {
		return decimal.Zero, nil
	}

	basePriority := ent.Grants[0].Priority
	baseFeaturePlanVersionID := ent.Grants[0].FeaturePlanVersionID
	for _, g := range ent.Grants {
		if g.Priority < basePriority {
			basePriority = g.Priority
			baseFeaturePlanVersionID = g.FeaturePlanVersionID
		}
	}

	priceCache := make(map[string]*price.Price, len(ent.Grants))
	priceFor := func(featurePlanVersionID string) (*price.Price, error) {
		if p, ok := priceCache[featurePlanVersionID]; ok {
			return p, nil
		}
		p, err := e.prices.GetByFeaturePlanVersion(ctx, featurePlanVersionID)
		if err != nil {
			if ierr.IsNotFound(err) {
				p = nil
			} else {
				return nil, err
			}
		}
		priceCache[featurePlanVersionID] = p
		return p, nil
	}

	formula, err := priceFor(baseFeaturePlanVersionID)
	if err != nil {
		return decimal.Zero, err
	}

	// A grant on the base FeaturePlanVersion bills against formula itself
	// (nil Price falls through to it in Waterfall, continuing one
	// cumulative curve across grant-covered and overage quantity); only a
	// grant on a different FeaturePlanVersion (a promotional override)
	// gets its own distinct Price.
	allowances := make([]pricing.GrantAllowance, 0, len(ent.Grants))
	for _, g := range ent.Grants {
		var grantPrice *price.Price
		if g.FeaturePlanVersionID != baseFeaturePlanVersionID {
			grantPrice, err = priceFor(g.FeaturePlanVersionID)
			if err != nil {
				return decimal.Zero, err
			}
		}
		allowances = append(allowances, pricing.GrantAllowance{
			GrantID:  g.GrantID,
			Priority: g.Priority,
			Limit:    g.Limit,
			Price:    grantPrice,
		})
	}

	charge := pricing.Waterfall(decimal.NewFromFloat(ent.Meter.Usage), allowances, formula)
	return charge.Subtotal, nil
}
