package entitlementevaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/feature"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/grantsnapshot"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
	"github.com/usagebilling/core/internal/usagemeter"
)

// --- fakes, hermetic and in-memory, mirroring the lock/usagemeter pattern ---

type fakeEntitlements struct {
	mu   sync.Mutex
	byID map[string]*entitlement.Entitlement
}

func newFakeEntitlements(ents ...*entitlement.Entitlement) *fakeEntitlements {
	m := make(map[string]*entitlement.Entitlement)
	for _, e := range ents {
		m[e.CustomerID+"/"+e.FeatureSlug] = e
	}
	return &fakeEntitlements{byID: m}
}

func (f *fakeEntitlements) Create(ctx context.Context, e *entitlement.Entitlement) (*entitlement.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[e.CustomerID+"/"+e.FeatureSlug] = e
	return e, nil
}
func (f *fakeEntitlements) GetByCustomerFeature(ctx context.Context, projectID, customerID, featureSlug string) (*entitlement.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[customerID+"/"+featureSlug], nil
}
func (f *fakeEntitlements) GetByID(ctx context.Context, id string) (*entitlement.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byID {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}
func (f *fakeEntitlements) ListByCustomer(ctx context.Context, projectID, customerID string) ([]*entitlement.Entitlement, error) {
	return nil, nil
}
func (f *fakeEntitlements) Update(ctx context.Context, e *entitlement.Entitlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[e.CustomerID+"/"+e.FeatureSlug] = e
	return nil
}
func (f *fakeEntitlements) Delete(ctx context.Context, id string) error { return nil }

type fakeFeatures struct{ feat *feature.Feature }

func (f *fakeFeatures) Create(ctx context.Context, ft *feature.Feature) error { return nil }
func (f *fakeFeatures) Get(ctx context.Context, id string) (*feature.Feature, error) {
	return f.feat, nil
}
func (f *fakeFeatures) GetBySlug(ctx context.Context, projectID, slug string) (*feature.Feature, error) {
	return f.feat, nil
}
func (f *fakeFeatures) ListByIDs(ctx context.Context, ids []string) ([]*feature.Feature, error) {
	return nil, nil
}
func (f *fakeFeatures) Update(ctx context.Context, ft *feature.Feature) error { return nil }
func (f *fakeFeatures) Delete(ctx context.Context, id string) error           { return nil }

type fakeGrantSource struct {
	grants  []*subscription.Grant
	configs []grantsnapshot.FeatureConfig
}

func (g *fakeGrantSource) ActiveGrants(ctx context.Context, projectID, customerID, featureID string, asOf int64) ([]*subscription.Grant, []grantsnapshot.FeatureConfig, error) {
	return g.grants, g.configs, nil
}

type fakeCycleSource struct{ window calendar.Window }

func (c *fakeCycleSource) Window(ctx context.Context, projectID, customerID, featureSlug string, now time.Time) (calendar.Window, error) {
	return c.window, nil
}

type fakePriceSource struct{ price *price.Price }

func (p *fakePriceSource) GetByFeaturePlanVersion(ctx context.Context, featurePlanVersionID string) (*price.Price, error) {
	return p.price, nil
}

type fakeAudit struct {
	mu   sync.Mutex
	recs []VerifyAudit
}

func (a *fakeAudit) Record(ctx context.Context, rec VerifyAudit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
}

type fakeStore struct{ reading analytics.Reading }

func (s *fakeStore) QueryUsage(ctx context.Context, aggType types.AggregationType, q aggregation.Query) (analytics.Reading, error) {
	return s.reading, nil
}
func (s *fakeStore) QueryEvents(ctx context.Context, filter analytics.EventFilter) ([]analytics.EventRow, error) {
	return nil, nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func newFakeCache() *fakeCache { return &fakeCache{items: make(map[string]interface{})} }
func (c *fakeCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}
func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, exp time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}
func (c *fakeCache) Delete(ctx context.Context, key string)       {}
func (c *fakeCache) DeleteByPrefix(ctx context.Context, p string) {}
func (c *fakeCache) Flush(ctx context.Context)                    {}

func grant(id string, priority int, limit *int64) *subscription.Grant {
	return &subscription.Grant{ID: id, Priority: priority, Limit: limit, FeaturePlanVersionID: "fpv-" + id}
}

func newEvaluator(ent *entitlement.Entitlement, grants []*subscription.Grant, configs []grantsnapshot.FeatureConfig, reading analytics.Reading, formula *price.Price, audit *fakeAudit) (*Evaluator, *fakeEntitlements) {
	entRepo := newFakeEntitlements(ent)
	feat := &feature.Feature{ID: "feat1", Slug: ent.FeatureSlug}
	meter := usagemeter.New(&fakeStore{reading: reading}, newFakeCache(), logger.NewNop())
	var auditSink AuditSink
	if audit != nil {
		auditSink = audit
	}
	e := New(
		entRepo,
		&fakeFeatures{feat: feat},
		&fakeGrantSource{grants: grants, configs: configs},
		&fakeCycleSource{window: calendar.Window{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}},
		&fakePriceSource{price: formula},
		meter,
		newFakeCache(),
		auditSink,
		logger.NewNop(),
	)
	return e, entRepo
}

func ptr(v int64) *int64 { return &v }

func baseEnt() *entitlement.Entitlement {
	cycleStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ent := &entitlement.Entitlement{
		ID:                "ent1",
		CustomerID:        "cust1",
		FeatureSlug:       "api_calls",
		FeatureType:       types.FeatureTypeUsage,
		ResetConfig:       types.ResetConfigBillingPeriod,
		AggregationMethod: types.AggregationSum,
	}
	// A real entitlement already has its first cycle materialized before
	// verify/reportUsage is ever called; without this, reconcile would see
	// a nil LastCycleStart as "crossed the boundary" on the very first read.
	ent.Meter.LastCycleStart = &cycleStart
	return ent
}

func TestVerify_WithinLimitIsAllowed(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(100))}
	e, _ := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.NewFromInt(10), Cursor: "e1"}, nil, nil)

	res, err := e.Verify(context.Background(), VerifyRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, float64(10), res.Usage)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, int64(90), *res.Remaining)
}

func TestVerify_HardLimitExceededDenies(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(5))}
	grants[0].HardLimit = true
	e, _ := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.NewFromInt(10), Cursor: "e1"}, nil, nil)

	res, err := e.Verify(context.Background(), VerifyRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, usagemeter.DeniedLimitExceeded, res.DeniedReason)
}

func TestVerify_UsageFeatureComputesWaterfallCost(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(5))}
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 2}
	e, _ := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.NewFromInt(8), Cursor: "e1"}, formula, nil)

	res, err := e.Verify(context.Background(), VerifyRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, res.Cost)
	assert.True(t, res.Cost.GreaterThan(decimal.Zero), "3 units of overage at a nonzero unit price must be billed")
}

func TestVerify_EmitsAuditRecord(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(100))}
	audit := &fakeAudit{}
	e, _ := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.Zero}, nil, audit)

	_, err := e.Verify(context.Background(), VerifyRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Now: time.Now()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		audit.mu.Lock()
		defer audit.mu.Unlock()
		return len(audit.recs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestReportUsage_PersistsEntitlementAfterAllowedDelta(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(100))}
	e, repo := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.Zero}, nil, nil)

	res, err := e.ReportUsage(context.Background(), ReportUsageRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Usage: 10, Now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, float64(10), res.Usage)

	stored, err := repo.GetByCustomerFeature(context.Background(), "", "cust1", "api_calls")
	require.NoError(t, err)
	assert.Equal(t, float64(10), stored.Meter.Usage)
}

func TestReportUsage_HardLimitDeniesAndDoesNotPersistDelta(t *testing.T) {
	ent := baseEnt()
	grants := []*subscription.Grant{grant("g1", 10, ptr(5))}
	grants[0].HardLimit = true
	e, repo := newEvaluator(ent, grants, nil, analytics.Reading{Value: decimal.Zero}, nil, nil)

	res, err := e.ReportUsage(context.Background(), ReportUsageRequest{CustomerID: "cust1", FeatureSlug: "api_calls", Usage: 10, Now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, usagemeter.DeniedLimitExceeded, res.DeniedReason)

	stored, err := repo.GetByCustomerFeature(context.Background(), "", "cust1", "api_calls")
	require.NoError(t, err)
	assert.Equal(t, float64(0), stored.Meter.Usage)
}
