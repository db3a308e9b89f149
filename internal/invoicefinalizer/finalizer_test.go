package invoicefinalizer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/domain/creditgrant"
	"github.com/usagebilling/core/internal/domain/creditgrantapplication"
	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/provider"
	"github.com/usagebilling/core/internal/types"
)

// --- hermetic in-memory fakes, mirroring the invoiceassembler pattern ---

type fakeInvoices struct {
	mu         sync.Mutex
	candidates []*invoice.Invoice
	updated    map[string]*invoice.Invoice
}

func newFakeInvoices(candidates ...*invoice.Invoice) *fakeInvoices {
	return &fakeInvoices{candidates: candidates, updated: make(map[string]*invoice.Invoice)}
}
func (f *fakeInvoices) Create(ctx context.Context, inv *invoice.Invoice) error { return nil }
func (f *fakeInvoices) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) Update(ctx context.Context, inv *invoice.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[inv.ID] = inv
	return nil
}
func (f *fakeInvoices) GetByStatementKey(ctx context.Context, projectID, statementKey string) (*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListByCustomer(ctx context.Context, projectID, customerID string) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListDueForCollection(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListPastDue(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListForFinalization(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*invoice.Invoice, len(f.candidates))
	copy(out, f.candidates)
	return out, nil
}
func (f *fakeInvoices) CreateWithItems(ctx context.Context, inv *invoice.Invoice, items []*invoice.InvoiceItem) error {
	return nil
}
func (f *fakeInvoices) AddItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	return nil
}
func (f *fakeInvoices) AppendPaymentAttempt(ctx context.Context, invoiceID string, attempt invoice.PaymentAttempt) error {
	return nil
}

type fakeLineItems struct {
	mu      sync.Mutex
	byInv   map[string][]*invoice.InvoiceItem
	updated map[string]*invoice.InvoiceItem
}

func newFakeLineItems(byInv map[string][]*invoice.InvoiceItem) *fakeLineItems {
	return &fakeLineItems{byInv: byInv, updated: make(map[string]*invoice.InvoiceItem)}
}
func (f *fakeLineItems) Create(ctx context.Context, item *invoice.InvoiceItem) (*invoice.InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = "item-credit"
	f.byInv[item.InvoiceID] = append(f.byInv[item.InvoiceID], item)
	return item, nil
}
func (f *fakeLineItems) CreateMany(ctx context.Context, items []*invoice.InvoiceItem) ([]*invoice.InvoiceItem, error) {
	return items, nil
}
func (f *fakeLineItems) Get(ctx context.Context, id string) (*invoice.InvoiceItem, error) {
	return nil, nil
}
func (f *fakeLineItems) GetByInvoiceID(ctx context.Context, invoiceID string) ([]*invoice.InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*invoice.InvoiceItem, len(f.byInv[invoiceID]))
	copy(out, f.byInv[invoiceID])
	return out, nil
}
func (f *fakeLineItems) Update(ctx context.Context, item *invoice.InvoiceItem) (*invoice.InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[item.ID] = item
	return item, nil
}
func (f *fakeLineItems) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeLineItems) UpdateAmounts(ctx context.Context, items []*invoice.InvoiceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.updated[it.ID] = it
	}
	return nil
}

type fakeItems struct {
	byID map[string]*subscription.SubscriptionItem
}

func (f *fakeItems) Create(ctx context.Context, item *subscription.SubscriptionItem) error {
	return nil
}
func (f *fakeItems) CreateBulk(ctx context.Context, items []*subscription.SubscriptionItem) error {
	return nil
}
func (f *fakeItems) Get(ctx context.Context, id string) (*subscription.SubscriptionItem, error) {
	return f.byID[id], nil
}
func (f *fakeItems) ListByPhase(ctx context.Context, phaseID string) ([]*subscription.SubscriptionItem, error) {
	return nil, nil
}
func (f *fakeItems) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionItem, error) {
	return nil, nil
}

type fakeCustomers struct{ cust *customer.Customer }

func (f *fakeCustomers) Create(ctx context.Context, c *customer.Customer) error { return nil }
func (f *fakeCustomers) Get(ctx context.Context, id string) (*customer.Customer, error) {
	return f.cust, nil
}
func (f *fakeCustomers) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	return f.cust, nil
}
func (f *fakeCustomers) Update(ctx context.Context, c *customer.Customer) error { return nil }
func (f *fakeCustomers) Delete(ctx context.Context, id string) error            { return nil }

type fakeEntitlements struct {
	byFeature map[string]*entitlement.Entitlement
}

func (f *fakeEntitlements) Create(ctx context.Context, e *entitlement.Entitlement) (*entitlement.Entitlement, error) {
	return e, nil
}
func (f *fakeEntitlements) GetByCustomerFeature(ctx context.Context, projectID, customerID, featureSlug string) (*entitlement.Entitlement, error) {
	return f.byFeature[featureSlug], nil
}
func (f *fakeEntitlements) GetByID(ctx context.Context, id string) (*entitlement.Entitlement, error) {
	for _, e := range f.byFeature {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}
func (f *fakeEntitlements) ListByCustomer(ctx context.Context, projectID, customerID string) ([]*entitlement.Entitlement, error) {
	return nil, nil
}
func (f *fakeEntitlements) Update(ctx context.Context, e *entitlement.Entitlement) error { return nil }
func (f *fakeEntitlements) Delete(ctx context.Context, id string) error                  { return nil }

type fakeCreditGrants struct {
	mu      sync.Mutex
	active  []*creditgrant.CreditGrant
	updated []*creditgrant.CreditGrant
}

func (f *fakeCreditGrants) Create(ctx context.Context, g *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	return g, nil
}
func (f *fakeCreditGrants) Get(ctx context.Context, id string) (*creditgrant.CreditGrant, error) {
	return nil, nil
}
func (f *fakeCreditGrants) Update(ctx context.Context, g *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, g)
	return g, nil
}
func (f *fakeCreditGrants) ListActiveForApplication(ctx context.Context, customerID, currency, paymentProvider string) ([]*creditgrant.CreditGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*creditgrant.CreditGrant, len(f.active))
	copy(out, f.active)
	return out, nil
}
func (f *fakeCreditGrants) ListByCustomer(ctx context.Context, customerID string) ([]*creditgrant.CreditGrant, error) {
	return nil, nil
}

type fakeCreditApplications struct {
	mu      sync.Mutex
	created []*creditgrantapplication.CreditGrantApplication
}

func (f *fakeCreditApplications) Create(ctx context.Context, app *creditgrantapplication.CreditGrantApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, app)
	return nil
}
func (f *fakeCreditApplications) ListByInvoice(ctx context.Context, invoiceID string) ([]*creditgrantapplication.CreditGrantApplication, error) {
	return nil, nil
}
func (f *fakeCreditApplications) ListByCreditGrant(ctx context.Context, creditGrantID string) ([]*creditgrantapplication.CreditGrantApplication, error) {
	return nil, nil
}

type fakePricingSource struct{ ctx PricingContext }

func (p *fakePricingSource) Context(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (PricingContext, error) {
	return p.ctx, nil
}

type fakeUsage struct{ reading analytics.Reading }

func (u *fakeUsage) QueryUsage(ctx context.Context, aggType types.AggregationType, q aggregation.Query) (analytics.Reading, error) {
	return u.reading, nil
}
func (u *fakeUsage) QueryEvents(ctx context.Context, filter analytics.EventFilter) ([]analytics.EventRow, error) {
	return nil, nil
}

type fakeProvider struct {
	mu            sync.Mutex
	createCalls   int
	updateCalls   int
	finalizeTotal int64
	addItemCalls  int
}

func (p *fakeProvider) CreateInvoice(ctx context.Context, draft provider.InvoiceDraft) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	return "prov-inv-1", nil
}
func (p *fakeProvider) UpdateInvoice(ctx context.Context, providerInvoiceID string, draft provider.InvoiceDraft) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls++
	return nil
}
func (p *fakeProvider) GetInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{Total: p.finalizeTotal}, nil
}
func (p *fakeProvider) FinalizeInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{Total: p.finalizeTotal}, nil
}
func (p *fakeProvider) AddInvoiceItem(ctx context.Context, providerInvoiceID string, item provider.Item) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addItemCalls++
	return "prov-item-1", nil
}
func (p *fakeProvider) UpdateInvoiceItem(ctx context.Context, providerItemID string, item provider.Item) error {
	return nil
}
func (p *fakeProvider) CollectPayment(ctx context.Context, providerInvoiceID, paymentMethodID string) error {
	return nil
}
func (p *fakeProvider) SendInvoice(ctx context.Context, providerInvoiceID string) error { return nil }
func (p *fakeProvider) GetStatusInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{Total: p.finalizeTotal}, nil
}
func (p *fakeProvider) FormatAmount(amount decimal.Decimal, currency string) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func baseInvoice(id string) *invoice.Invoice {
	return &invoice.Invoice{
		ID:               id,
		ProjectID:        "proj1",
		SubscriptionID:   "sub1",
		CustomerID:       "cust1",
		Status:           types.InvoiceStatusDraft,
		StatementKey:     "stmt-" + id,
		Currency:         "usd",
		PaymentProvider:  "stripe",
		WhenToBill:       types.WhenToBillPayInAdvance,
		CollectionMethod: types.CollectionMethodChargeAutomatically,
		CycleStartAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CycleEndAt:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DueAt:            time.Date(2026, 2, 1, 0, 15, 0, 0, time.UTC),
	}
}

func newFinalizer(
	invoices *fakeInvoices,
	lineItems *fakeLineItems,
	items map[string]*subscription.SubscriptionItem,
	cust *customer.Customer,
	entitlements map[string]*entitlement.Entitlement,
	grants *fakeCreditGrants,
	apps *fakeCreditApplications,
	pctx PricingContext,
	reading analytics.Reading,
	prov *fakeProvider,
) *Finalizer {
	if grants == nil {
		grants = &fakeCreditGrants{}
	}
	if apps == nil {
		apps = &fakeCreditApplications{}
	}
	return New(
		invoices,
		lineItems,
		&fakeItems{byID: items},
		&fakeCustomers{cust: cust},
		&fakeEntitlements{byFeature: entitlements},
		grants,
		apps,
		&fakePricingSource{ctx: pctx},
		&fakeUsage{reading: reading},
		prov,
		logger.NewNop(),
	)
}

func flatFormula(amount int) *price.Price {
	return &price.Price{BillingModel: types.BillingModelFlatFee, Amount: amount}
}

func TestFinalize_PricesItemsAndMarksUnpaid(t *testing.T) {
	inv := baseInvoice("inv1")
	items := map[string][]*invoice.InvoiceItem{
		"inv1": {
			{ID: "li1", InvoiceID: "inv1", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.NewFromInt(1), CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1", Units: int64ptr(1)},
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	prov := &fakeProvider{finalizeTotal: 1000}
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), nil, nil, nil, PricingContext{Formula: flatFormula(1000)}, analytics.Reading{}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, types.InvoiceStatusUnpaid, out[0].Status)
	assert.True(t, out[0].Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.NotNil(t, out[0].IssueDate)
	require.NotNil(t, out[0].InvoicePaymentProviderID)
	assert.Equal(t, "prov-inv-1", *out[0].InvoicePaymentProviderID)
	assert.Equal(t, 1, prov.createCalls)
	assert.Equal(t, 1, prov.addItemCalls)
}

func TestFinalize_ZeroTotalInvoiceIsVoided(t *testing.T) {
	inv := baseInvoice("inv2")
	items := map[string][]*invoice.InvoiceItem{
		"inv2": {
			{ID: "li2", InvoiceID: "inv2", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.NewFromInt(1), CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1", Units: int64ptr(1)},
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	prov := &fakeProvider{finalizeTotal: 0}
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), nil, nil, nil, PricingContext{Formula: flatFormula(0)}, analytics.Reading{}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusVoid, out[0].Status)
}

func TestFinalize_MeteredItemRequeriesQuantity(t *testing.T) {
	inv := baseInvoice("inv3")
	items := map[string][]*invoice.InvoiceItem{
		"inv3": {
			{ID: "li3", InvoiceID: "inv3", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.NewFromInt(1), CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1"}, // Units nil => usage-based
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	prov := &fakeProvider{finalizeTotal: 200}
	pctx := PricingContext{Formula: flatFormula(2), AggregationMethod: types.AggregationSum}
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), nil, nil, nil, pctx, analytics.Reading{Value: decimal.NewFromInt(100)}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	reQueried := lineItems.updated["li3"]
	require.NotNil(t, reQueried)
	assert.True(t, reQueried.Quantity.Equal(decimal.NewFromInt(100)), "a metered item's quantity must be requeried from the usage store")
}

func TestFinalize_AllAggregationUsesAccumulatedUsage(t *testing.T) {
	inv := baseInvoice("inv4")
	items := map[string][]*invoice.InvoiceItem{
		"inv4": {
			{ID: "li4", InvoiceID: "inv4", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.Zero, CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1"},
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	prov := &fakeProvider{finalizeTotal: 500}
	ents := map[string]*entitlement.Entitlement{
		"storage-gb": {AccumulatedUsage: 500},
	}
	pctx := PricingContext{Formula: flatFormula(1), AggregationMethod: types.AggregationSumAll, FeatureSlug: "storage-gb"}
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), ents, nil, nil, pctx, analytics.Reading{Value: decimal.NewFromInt(999)}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	reQueried := lineItems.updated["li4"]
	require.NotNil(t, reQueried)
	assert.True(t, reQueried.Quantity.Equal(decimal.NewFromInt(500)), "an _all aggregation must read accumulatedUsage, not issue a fresh query")
}

func TestFinalize_AppliesCreditGrantsFIFOAndInsertsCreditLine(t *testing.T) {
	inv := baseInvoice("inv5")
	items := map[string][]*invoice.InvoiceItem{
		"inv5": {
			{ID: "li5", InvoiceID: "inv5", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.NewFromInt(1), CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1", Units: int64ptr(1)},
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	earlyExpiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lateExpiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	grants := &fakeCreditGrants{active: []*creditgrant.CreditGrant{
		{ID: "grant-early", CustomerID: "cust1", Currency: "usd", PaymentProvider: "stripe", TotalAmount: decimal.NewFromInt(300), ExpiresAt: &earlyExpiry},
		{ID: "grant-late", CustomerID: "cust1", Currency: "usd", PaymentProvider: "stripe", TotalAmount: decimal.NewFromInt(5000), ExpiresAt: &lateExpiry},
	}}
	apps := &fakeCreditApplications{}
	prov := &fakeProvider{finalizeTotal: 0}
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), nil, grants, apps, PricingContext{Formula: flatFormula(1000)}, analytics.Reading{}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, out[0].AmountCreditUsed.Equal(decimal.NewFromInt(1000)), "the earliest-expiring grant must drain fully before the later one is touched")
	assert.True(t, out[0].Total.IsZero())
	assert.Equal(t, types.InvoiceStatusVoid, out[0].Status)

	require.Len(t, apps.created, 2)
	assert.Equal(t, "grant-early", apps.created[0].CreditGrantID)
	assert.True(t, apps.created[0].AmountApplied.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "grant-late", apps.created[1].CreditGrantID)
	assert.True(t, apps.created[1].AmountApplied.Equal(decimal.NewFromInt(700)))

	creditLine := lineItems.byInv["inv5"][1]
	assert.Equal(t, types.InvoiceItemKindCreditApplied, creditLine.Kind)
	assert.True(t, creditLine.AmountTotal.Equal(decimal.NewFromInt(-1000)))
}

func TestFinalize_ProviderTotalMismatchIsNotFatalToBatch(t *testing.T) {
	inv := baseInvoice("inv6")
	items := map[string][]*invoice.InvoiceItem{
		"inv6": {
			{ID: "li6", InvoiceID: "inv6", Kind: types.InvoiceItemKindPeriod, SubscriptionItemID: strPtr("subitem1"), FeaturePlanVersionID: strPtr("fpv1"), Quantity: decimal.NewFromInt(1), CycleStartAt: inv.CycleStartAt, CycleEndAt: inv.CycleEndAt},
		},
	}
	subItems := map[string]*subscription.SubscriptionItem{
		"subitem1": {ID: "subitem1", Units: int64ptr(1)},
	}
	invoices := newFakeInvoices(inv)
	lineItems := newFakeLineItems(items)
	prov := &fakeProvider{finalizeTotal: 999999} // deliberately wrong vs. the computed total
	f := newFinalizer(invoices, lineItems, subItems, baseCust(), nil, nil, nil, PricingContext{Formula: flatFormula(1000)}, analytics.Reading{}, prov)

	out, err := f.Finalize(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err, "a provider-sync failure must not fail the whole batch")
	require.Len(t, out, 1)
	assert.Nil(t, out[0].InvoicePaymentProviderID, "a mismatched total must not be persisted as synced")
}

func baseCust() *customer.Customer {
	return &customer.Customer{ID: "cust1", ExternalID: "ext-cust1"}
}

func int64ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
