package periodmaterializer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/domain/creditgrant"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/proration"
	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

type fakePeriods struct {
	byKey   map[string]*subscription.BillingPeriod
	created []*subscription.BillingPeriod
}

func newFakePeriods() *fakePeriods {
	return &fakePeriods{byKey: make(map[string]*subscription.BillingPeriod)}
}

func periodKey(subID, phaseID, itemID string, start, end int64) string {
	return subID + "/" + phaseID + "/" + itemID
}

func (f *fakePeriods) Create(ctx context.Context, bp *subscription.BillingPeriod) error {
	key := periodKey(bp.SubscriptionID, bp.SubscriptionPhaseID, bp.SubscriptionItemID, bp.CycleStartAt.Unix(), bp.CycleEndAt.Unix())
	if _, exists := f.byKey[key]; exists {
		return ierr.NewError("already exists").Mark(ierr.ErrAlreadyExists)
	}
	f.byKey[key] = bp
	f.created = append(f.created, bp)
	return nil
}
func (f *fakePeriods) Get(ctx context.Context, id string) (*subscription.BillingPeriod, error) {
	return nil, nil
}
func (f *fakePeriods) GetByUniqueKey(ctx context.Context, subID, phaseID, itemID string, start, end int64) (*subscription.BillingPeriod, error) {
	return f.byKey[periodKey(subID, phaseID, itemID, start, end)], nil
}
func (f *fakePeriods) ListDue(ctx context.Context, subID string, asOf int64) ([]*subscription.BillingPeriod, error) {
	return nil, nil
}
func (f *fakePeriods) AttachToInvoice(ctx context.Context, periodIDs []string, invoiceID string) error {
	return nil
}
func (f *fakePeriods) ListDueSubscriptionIDs(ctx context.Context, asOf int64, limit int) ([]string, error) {
	return nil, nil
}

type fakePhases struct {
	updated []*subscription.SubscriptionPhase
	created []*subscription.SubscriptionPhase
}

func (f *fakePhases) Create(ctx context.Context, p *subscription.SubscriptionPhase) error {
	f.created = append(f.created, p)
	return nil
}
func (f *fakePhases) Get(ctx context.Context, id string) (*subscription.SubscriptionPhase, error) {
	return nil, nil
}
func (f *fakePhases) Update(ctx context.Context, p *subscription.SubscriptionPhase) error {
	f.updated = append(f.updated, p)
	return nil
}
func (f *fakePhases) GetActive(ctx context.Context, subID string, t int64) (*subscription.SubscriptionPhase, error) {
	return nil, nil
}
func (f *fakePhases) ListBySubscription(ctx context.Context, subID string) ([]*subscription.SubscriptionPhase, error) {
	return nil, nil
}
func (f *fakePhases) ListDueForMaterialization(ctx context.Context, asOf int64, limit int) ([]*subscription.SubscriptionPhase, error) {
	return nil, nil
}
func (f *fakePhases) ListDueForRenewal(ctx context.Context, asOf int64, limit int) ([]*subscription.SubscriptionPhase, error) {
	return nil, nil
}

type fakeItems struct {
	items []*subscription.SubscriptionItem
}

func (f *fakeItems) Create(ctx context.Context, item *subscription.SubscriptionItem) error {
	return nil
}
func (f *fakeItems) CreateBulk(ctx context.Context, items []*subscription.SubscriptionItem) error {
	return nil
}
func (f *fakeItems) Get(ctx context.Context, id string) (*subscription.SubscriptionItem, error) {
	return nil, nil
}
func (f *fakeItems) ListByPhase(ctx context.Context, phaseID string) ([]*subscription.SubscriptionItem, error) {
	return f.items, nil
}
func (f *fakeItems) ListBySubscription(ctx context.Context, subID string) ([]*subscription.SubscriptionItem, error) {
	return nil, nil
}

type fakePlanVersions struct{ pv *plan.PlanVersion }

func (f *fakePlanVersions) Create(ctx context.Context, v *plan.PlanVersion) error { return nil }
func (f *fakePlanVersions) Get(ctx context.Context, id string) (*plan.PlanVersion, error) {
	return f.pv, nil
}
func (f *fakePlanVersions) GetPublished(ctx context.Context, planID string) (*plan.PlanVersion, error) {
	return f.pv, nil
}
func (f *fakePlanVersions) Update(ctx context.Context, v *plan.PlanVersion) error { return nil }

type fakeCreditGrants struct{ created []*creditgrant.CreditGrant }

func (f *fakeCreditGrants) Create(ctx context.Context, cg *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	f.created = append(f.created, cg)
	return cg, nil
}
func (f *fakeCreditGrants) Get(ctx context.Context, id string) (*creditgrant.CreditGrant, error) {
	return nil, nil
}
func (f *fakeCreditGrants) Update(ctx context.Context, cg *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	return cg, nil
}
func (f *fakeCreditGrants) ListActiveForApplication(ctx context.Context, customerID, currency, paymentProvider string) ([]*creditgrant.CreditGrant, error) {
	return nil, nil
}
func (f *fakeCreditGrants) ListByCustomer(ctx context.Context, customerID string) ([]*creditgrant.CreditGrant, error) {
	return nil, nil
}

func monthlyPlanVersion() *plan.PlanVersion {
	return &plan.PlanVersion{
		ID:               "pv1",
		Currency:         "usd",
		PaymentProvider:  "stripe",
		WhenToBill:       types.WhenToBillPayInAdvance,
		CollectionMethod: types.CollectionMethodChargeAutomatically,
		Interval:         types.IntervalMonth,
		IntervalCount:    1,
		Anchor:           1,
	}
}

func TestMaterialize_InsertsPendingPeriodPerItem(t *testing.T) {
	periods := newFakePeriods()
	items := &fakeItems{items: []*subscription.SubscriptionItem{{ID: "item1"}, {ID: "item2"}}}
	pv := monthlyPlanVersion()
	m := New(periods, &fakePhases{}, items, &fakePlanVersions{pv: pv}, &fakeCreditGrants{}, proration.NewCalculator(logger.NewNop()), logger.NewNop())

	sub := &subscription.Subscription{ID: "sub1", ProjectID: "proj1", CustomerID: "cust1"}
	phase := &subscription.SubscriptionPhase{ID: "phase1", PlanVersionID: "pv1", StartAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	result, err := m.Materialize(context.Background(), sub, phase, now)
	require.NoError(t, err)
	require.Len(t, result, 2)
	for _, bp := range result {
		assert.Equal(t, types.BillingPeriodStatusPending, bp.Status)
		assert.Equal(t, types.BillingPeriodTypeNormal, bp.Type)
		assert.Equal(t, bp.CycleStartAt.Unix(), bp.InvoiceAt, "pay_in_advance invoices at cycle start")
	}
}

func TestMaterialize_RepeatedCallIsIdempotent(t *testing.T) {
	periods := newFakePeriods()
	items := &fakeItems{items: []*subscription.SubscriptionItem{{ID: "item1"}}}
	pv := monthlyPlanVersion()
	m := New(periods, &fakePhases{}, items, &fakePlanVersions{pv: pv}, &fakeCreditGrants{}, proration.NewCalculator(logger.NewNop()), logger.NewNop())

	sub := &subscription.Subscription{ID: "sub1", ProjectID: "proj1", CustomerID: "cust1"}
	phase := &subscription.SubscriptionPhase{ID: "phase1", PlanVersionID: "pv1", StartAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	_, err := m.Materialize(context.Background(), sub, phase, now)
	require.NoError(t, err)
	result2, err := m.Materialize(context.Background(), sub, phase, now)
	require.NoError(t, err)
	assert.Len(t, result2, 1, "a second call for the same window must not insert a duplicate")
	assert.Len(t, periods.created, 1)
}

func TestMaterialize_TrialItemHasZeroAmountEstimate(t *testing.T) {
	periods := newFakePeriods()
	items := &fakeItems{items: []*subscription.SubscriptionItem{{ID: "item1"}}}
	pv := monthlyPlanVersion()
	m := New(periods, &fakePhases{}, items, &fakePlanVersions{pv: pv}, &fakeCreditGrants{}, proration.NewCalculator(logger.NewNop()), logger.NewNop())

	sub := &subscription.Subscription{ID: "sub1", ProjectID: "proj1", CustomerID: "cust1"}
	trialEnd := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	phase := &subscription.SubscriptionPhase{ID: "phase1", PlanVersionID: "pv1", StartAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), TrialEndsAt: &trialEnd}
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	result, err := m.Materialize(context.Background(), sub, phase, now)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, types.BillingPeriodTypeTrial, result[0].Type)
	require.NotNil(t, result[0].AmountEstimateCents)
	assert.Equal(t, int64(0), *result[0].AmountEstimateCents)
}

func TestHandleMidCycleChange_ClosesOldPhaseAndOpensNew(t *testing.T) {
	periods := newFakePeriods()
	phases := &fakePhases{}
	items := &fakeItems{items: []*subscription.SubscriptionItem{{ID: "item1"}}}
	pv := monthlyPlanVersion()
	creditGrants := &fakeCreditGrants{}
	m := New(periods, phases, items, &fakePlanVersions{pv: pv}, creditGrants, proration.NewCalculator(logger.NewNop()), logger.NewNop())

	cycleStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC) // halfway through a 31-day Jan cycle

	oldPhase := &subscription.SubscriptionPhase{ID: "phase1", PlanVersionID: "pv1", StartAt: cycleStart, CurrentCycleStartAt: cycleStart, CurrentCycleEndAt: cycleEnd}

	res, err := m.HandleMidCycleChange(context.Background(), MidCycleChangeInput{
		Subscription:            &subscription.Subscription{ID: "sub1", ProjectID: "proj1", CustomerID: "cust1", Timezone: "UTC"},
		OldPhase:                oldPhase,
		NewPlanVersionID:        "pv2",
		ItemOriginalAmountCents: map[string]int64{"item1": 3100},
		Now:                     now,
	})
	require.NoError(t, err)

	require.Len(t, phases.updated, 1, "the old phase must be closed")
	assert.Equal(t, &now, phases.updated[0].EndAt)
	require.Len(t, phases.created, 1, "a successor phase must be opened")
	assert.Equal(t, "pv2", res.NewPhase.PlanVersionID)

	require.Len(t, res.Periods, 1)
	assert.Equal(t, types.BillingPeriodTypeMidCycleChange, res.Periods[0].Type)
	assert.Equal(t, now, res.Periods[0].CycleEndAt)

	require.Len(t, res.CreditGrants, 1, "pay-in-advance outgoing phase must issue a proration credit")
	assert.True(t, res.CreditGrants[0].TotalAmount.IsPositive())
	assert.Equal(t, types.CreditGrantReasonDowngradeInAdvance, res.CreditGrants[0].Reason)
}

func TestHandleMidCycleChange_PayInArrearIssuesNoCredit(t *testing.T) {
	periods := newFakePeriods()
	phases := &fakePhases{}
	items := &fakeItems{items: []*subscription.SubscriptionItem{{ID: "item1"}}}
	pv := monthlyPlanVersion()
	pv.WhenToBill = types.WhenToBillPayInArrear
	creditGrants := &fakeCreditGrants{}
	m := New(periods, phases, items, &fakePlanVersions{pv: pv}, creditGrants, proration.NewCalculator(logger.NewNop()), logger.NewNop())

	cycleStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	oldPhase := &subscription.SubscriptionPhase{ID: "phase1", PlanVersionID: "pv1", StartAt: cycleStart, CurrentCycleStartAt: cycleStart, CurrentCycleEndAt: cycleEnd}

	res, err := m.HandleMidCycleChange(context.Background(), MidCycleChangeInput{
		Subscription:            &subscription.Subscription{ID: "sub1", ProjectID: "proj1", CustomerID: "cust1", Timezone: "UTC"},
		OldPhase:                oldPhase,
		NewPlanVersionID:        "pv2",
		ItemOriginalAmountCents: map[string]int64{"item1": 3100},
		Now:                     now,
	})
	require.NoError(t, err)
	assert.Empty(t, res.CreditGrants)
}
