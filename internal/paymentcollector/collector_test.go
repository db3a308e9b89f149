package paymentcollector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/provider"
	"github.com/usagebilling/core/internal/types"
)

type fakeInvoices struct {
	mu         sync.Mutex
	candidates []*invoice.Invoice
	attempts   map[string][]invoice.PaymentAttempt
}

func newFakeInvoices(candidates ...*invoice.Invoice) *fakeInvoices {
	return &fakeInvoices{candidates: candidates, attempts: make(map[string][]invoice.PaymentAttempt)}
}
func (f *fakeInvoices) Create(ctx context.Context, inv *invoice.Invoice) error { return nil }
func (f *fakeInvoices) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) Update(ctx context.Context, inv *invoice.Invoice) error { return nil }
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
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*invoice.Invoice, len(f.candidates))
	copy(out, f.candidates)
	return out, nil
}
func (f *fakeInvoices) ListPastDue(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) ListForFinalization(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoices) CreateWithItems(ctx context.Context, inv *invoice.Invoice, items []*invoice.InvoiceItem) error {
	return nil
}
func (f *fakeInvoices) AddItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	return nil
}
func (f *fakeInvoices) AppendPaymentAttempt(ctx context.Context, invoiceID string, attempt invoice.PaymentAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[invoiceID] = append(f.attempts[invoiceID], attempt)
	return nil
}

type fakeProvider struct {
	collectErr   error
	sendErr      error
	statusPaid   bool
	statusVoid   bool
	collectCalls int
	sendCalls    int
}

func (p *fakeProvider) CreateInvoice(ctx context.Context, draft provider.InvoiceDraft) (string, error) {
	return "", nil
}
func (p *fakeProvider) UpdateInvoice(ctx context.Context, providerInvoiceID string, draft provider.InvoiceDraft) error {
	return nil
}
func (p *fakeProvider) GetInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{}, nil
}
func (p *fakeProvider) FinalizeInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{}, nil
}
func (p *fakeProvider) AddInvoiceItem(ctx context.Context, providerInvoiceID string, item provider.Item) (string, error) {
	return "", nil
}
func (p *fakeProvider) UpdateInvoiceItem(ctx context.Context, providerItemID string, item provider.Item) error {
	return nil
}
func (p *fakeProvider) CollectPayment(ctx context.Context, providerInvoiceID, paymentMethodID string) error {
	p.collectCalls++
	return p.collectErr
}
func (p *fakeProvider) SendInvoice(ctx context.Context, providerInvoiceID string) error {
	p.sendCalls++
	return p.sendErr
}
func (p *fakeProvider) GetStatusInvoice(ctx context.Context, providerInvoiceID string) (*provider.Status, error) {
	return &provider.Status{Paid: p.statusPaid, Void: p.statusVoid}, nil
}
func (p *fakeProvider) FormatAmount(amount decimal.Decimal, currency string) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type fakeEvents struct {
	mu     sync.Mutex
	events []types.MachineEventType
}

func (e *fakeEvents) Emit(ctx context.Context, subscriptionID string, event types.MachineEventType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func baseInvoice(id string, status types.InvoiceStatus) *invoice.Invoice {
	providerID := "prov-" + id
	return &invoice.Invoice{
		ID:                       id,
		SubscriptionID:           "sub1",
		Status:                   status,
		CollectionMethod:         types.CollectionMethodChargeAutomatically,
		InvoicePaymentProviderID: &providerID,
		DueAt:                    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		PastDueAt:                time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestCollect_SuccessfulChargeMarksPaidAndEmitsSuccess(t *testing.T) {
	inv := baseInvoice("inv1", types.InvoiceStatusUnpaid)
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{}
	events := &fakeEvents{}
	c := New(invoices, prov, events, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusPaid, out[0].Status)
	assert.NotNil(t, out[0].PaidAt)
	assert.Equal(t, 1, prov.collectCalls)
	assert.Contains(t, events.events, types.MachineEventPaymentSuccess)
}

func TestCollect_FailedChargeStaysUnpaidAndRecordsAttempt(t *testing.T) {
	inv := baseInvoice("inv2", types.InvoiceStatusUnpaid)
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{collectErr: errors.New("card declined")}
	events := &fakeEvents{}
	c := New(invoices, prov, events, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusUnpaid, out[0].Status)
	assert.Len(t, invoices.attempts["inv2"], 1)
	assert.Equal(t, types.PaymentAttemptStatusFailed, invoices.attempts["inv2"][0].Status)
	assert.Contains(t, events.events, types.MachineEventPaymentFailure)
}

func TestCollect_SendInvoiceMovesToWaiting(t *testing.T) {
	inv := baseInvoice("inv3", types.InvoiceStatusUnpaid)
	inv.CollectionMethod = types.CollectionMethodSendInvoice
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{}
	c := New(invoices, prov, nil, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusWaiting, out[0].Status)
	assert.NotNil(t, out[0].SentAt)
	assert.Equal(t, 1, prov.sendCalls)
}

func TestCollect_WaitingInvoicePolledToPaid(t *testing.T) {
	inv := baseInvoice("inv4", types.InvoiceStatusWaiting)
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{statusPaid: true}
	events := &fakeEvents{}
	c := New(invoices, prov, events, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusPaid, out[0].Status)
	assert.Contains(t, events.events, types.MachineEventPaymentSuccess)
}

func TestCollect_WaitingInvoicePolledToVoid(t *testing.T) {
	inv := baseInvoice("inv5", types.InvoiceStatusWaiting)
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{statusVoid: true}
	c := New(invoices, prov, nil, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusVoid, out[0].Status)
}

func TestCollect_ExhaustedAttemptsFailsWithPendingExpiration(t *testing.T) {
	inv := baseInvoice("inv6", types.InvoiceStatusUnpaid)
	for i := 0; i < invoice.MaxPaymentAttempts; i++ {
		inv.PaymentAttempts = append(inv.PaymentAttempts, invoice.PaymentAttempt{Status: types.PaymentAttemptStatusFailed})
	}
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{}
	events := &fakeEvents{}
	c := New(invoices, prov, events, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusFailed, out[0].Status)
	require.NotNil(t, out[0].FailureReason)
	assert.Equal(t, failureReasonPendingExpiration, *out[0].FailureReason)
	assert.Equal(t, 0, prov.collectCalls, "an exhausted invoice must not attempt another charge")
	assert.Contains(t, events.events, types.MachineEventInvoiceFailure)
}

func TestCollect_PastDueInvoiceFailsWithoutAttempting(t *testing.T) {
	inv := baseInvoice("inv7", types.InvoiceStatusUnpaid)
	inv.PastDueAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) // already past
	invoices := newFakeInvoices(inv)
	prov := &fakeProvider{}
	c := New(invoices, prov, nil, logger.NewNop())

	out, err := c.Collect(context.Background(), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.InvoiceStatusFailed, out[0].Status)
	assert.Equal(t, 0, prov.collectCalls)
}
