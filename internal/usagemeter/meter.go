// Package usagemeter implements UsageMeter (spec.md §4.4): reconciling an
// entitlement's meter against the analytics store and advancing its usage
// cycle, plus the idempotent reportUsage path used for direct usage writes.
package usagemeter

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/cache"
	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

// IdempotenceTTL bounds how long a reportUsage result is replayed for a
// repeated idempotenceKey before the slot is free to be reused.
const IdempotenceTTL = 24 * time.Hour

// DeniedReason explains why reportUsage refused a delta.
type DeniedReason string

const DeniedLimitExceeded DeniedReason = "LIMIT_EXCEEDED"

// Meter reconciles entitlements against an UsageStore and guards
// reportUsage writes with an idempotence cache.
type Meter struct {
	store  analytics.UsageStore
	cache  cache.Cache
	logger *logger.Logger
}

func New(store analytics.UsageStore, c cache.Cache, log *logger.Logger) *Meter {
	return &Meter{store: store, cache: c, logger: log}
}

// Source names the event stream and the feature's billing window for one
// reconcile call. Window is the zero Window when the entitlement's
// ResetConfig is "never" — there is then no cycle boundary to detect.
type Source struct {
	EventName          string
	PropertyName       string
	ExternalCustomerID string
	Window             Window
}

// Window mirrors calendar.Window without importing the calendar package
// directly, keeping UsageMeter ignorant of how the window was computed;
// EntitlementEvaluator is the caller that owns a subscription's billing
// config and passes the window it derived from CalendarCycle.
type Window struct {
	Start time.Time
	End   time.Time
}

// Reconcile implements spec.md §4.4 step 1-3: pull the usage delta recorded
// since the entitlement's cursor, fold it in per AggregationMethod, and
// roll the cycle over if Source.Window has moved past the meter's last
// known cycle start. Returns whether a cycle reset happened.
func (m *Meter) Reconcile(ctx context.Context, ent *entitlement.Entitlement, src Source, now time.Time) (bool, error) {
	reading, err := m.store.QueryUsage(ctx, ent.AggregationMethod, aggregation.Query{
		EventName:          src.EventName,
		PropertyName:       src.PropertyName,
		ExternalCustomerID: src.ExternalCustomerID,
		SinceEventID:       ent.Meter.LastReconciledID,
		WindowStart:        src.Window.Start,
	})
	if err != nil {
		return false, err
	}

	delta, _ := reading.Value.Float64()
	ignoresReset := ent.AggregationMethod.IgnoresCycleReset()

	if ignoresReset {
		ent.AccumulatedUsage = combine(ent.AggregationMethod, ent.AccumulatedUsage, delta)
		ent.Meter.LastReconciledID = reading.Cursor
		ent.Meter.LastUpdated = now
		return false, nil
	}

	ent.Meter.Usage = combine(ent.AggregationMethod, ent.Meter.Usage, delta)
	ent.Meter.LastReconciledID = reading.Cursor

	reset := false
	if ent.ResetConfig == types.ResetConfigBillingPeriod && !src.Window.Start.IsZero() {
		if ent.Meter.LastCycleStart == nil || src.Window.Start.After(*ent.Meter.LastCycleStart) {
			ent.AccumulatedUsage += ent.Meter.Usage
			ent.Meter.Usage = 0
			cycleStart := src.Window.Start
			ent.Meter.LastCycleStart = &cycleStart
			ent.CurrentCycleStartAt = src.Window.Start
			ent.CurrentCycleEndAt = src.Window.End
			reset = true
		}
	}

	ent.CurrentCycleUsage = ent.Meter.Usage
	ent.Meter.LastUpdated = now
	return reset, nil
}

// combine folds a freshly queried delta into an existing running value per
// the aggregation type's semantics: sum/count accumulate, max keeps the
// larger value, last_during_period replaces outright.
func combine(aggType types.AggregationType, current, delta float64) float64 {
	switch aggType {
	case types.AggregationMax, types.AggregationMaxAll:
		if delta > current {
			return delta
		}
		return current
	case types.AggregationLastDuringPeriod:
		return delta
	default: // sum, sum_all, count, count_all
		return current + delta
	}
}

// Result is reportUsage's outcome.
type Result struct {
	Allowed           bool
	DeniedReason      DeniedReason
	Remaining         *int64
	Usage             float64
	NotifiedOverLimit bool
	CacheHit          bool
}

// ReportUsage implements spec.md §4.4's reportUsage: reconcile, then apply
// delta directly against the entitlement's limit. A hard-limited
// entitlement that would be pushed over its limit rejects the delta
// without persisting it; a soft-limited one always persists and merely
// flags the overage. Identical (entitlement, idempotenceKey) calls replay
// their first result rather than double-applying delta.
func (m *Meter) ReportUsage(ctx context.Context, ent *entitlement.Entitlement, src Source, delta float64, idempotenceKey string, now time.Time) (Result, error) {
	if idempotenceKey != "" {
		key := idempotenceCacheKey(ent.ID, idempotenceKey)
		if cached, ok := m.cache.Get(ctx, key); ok {
			if res, ok := cached.(Result); ok {
				res.CacheHit = true
				return res, nil
			}
		}
	}

	if _, err := m.Reconcile(ctx, ent, src, now); err != nil {
		return Result{}, err
	}

	projected := ent.Meter.Usage + delta
	overLimit := ent.Limit != nil && projected > float64(*ent.Limit)

	var result Result
	switch {
	case overLimit && ent.HardLimit:
		m.logger.Debugw("reportUsage denied: hard limit exceeded",
			"entitlement_id", ent.ID, "feature_slug", ent.FeatureSlug, "usage", ent.Meter.Usage, "delta", delta, "limit", *ent.Limit)
		result = Result{Allowed: false, DeniedReason: DeniedLimitExceeded, Usage: ent.Meter.Usage, Remaining: ent.Remaining()}
	case overLimit:
		ent.Meter.Usage = projected
		ent.CurrentCycleUsage = ent.Meter.Usage
		result = Result{Allowed: true, NotifiedOverLimit: true, Usage: ent.Meter.Usage, Remaining: ent.Remaining()}
	default:
		ent.Meter.Usage = projected
		ent.CurrentCycleUsage = ent.Meter.Usage
		result = Result{Allowed: true, Usage: ent.Meter.Usage, Remaining: ent.Remaining()}
	}

	if idempotenceKey != "" {
		m.cache.Set(ctx, idempotenceCacheKey(ent.ID, idempotenceKey), result, IdempotenceTTL)
	}
	return result, nil
}

func idempotenceCacheKey(entitlementID, idempotenceKey string) string {
	return cache.GenerateKey(cache.PrefixIdempotence, entitlementID, idempotenceKey)
}
