package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// InvoiceDraft is the provider-agnostic shape PaymentProvider.CreateInvoice
// and UpdateInvoice work from. It carries only what the remote invoice
// needs: the core never sends its own ID as anything but metadata.
type InvoiceDraft struct {
	ExternalCustomerID string
	Currency           string
	Description        string
	DueAt              *int64 // unix seconds; only meaningful for send_invoice
	AutoCollect        bool   // true for charge_automatically, false for send_invoice
	Metadata           map[string]string
}

// Item is one line of a provider invoice. StableKey carries the core's
// subscriptionItemId (or "credit") into the provider item's metadata;
// AddInvoiceItem does not deduplicate on it.
type Item struct {
	ID          string // provider item id, empty on create
	StableKey   string // subscriptionItemId or "credit" for the credit_applied line
	AmountCents int64  // negative for the credit_applied line
	Description string
	Metadata    map[string]string
}

// Status is the provider's view of an invoice, returned by GetStatusInvoice
// so PaymentCollector can reconcile a `waiting` invoice without holding a
// long-lived webhook subscription.
type Status struct {
	Paid  bool
	Void  bool
	Total int64 // provider-reported total, in minor currency units
}

// PaymentProvider is the nine-operation interface spec.md §1 names as an
// external collaborator: createInvoice, updateInvoice, getInvoice,
// finalizeInvoice, addInvoiceItem, updateInvoiceItem, collectPayment,
// sendInvoice, getStatusInvoice, plus formatAmount for minor-unit
// conversion. The provider's own charge/send/vault implementation is a
// non-goal; this interface and its one concrete adapter (Stripe) exist
// only so InvoiceFinalizer/PaymentCollector have something real to call.
type PaymentProvider interface {
	CreateInvoice(ctx context.Context, draft InvoiceDraft) (providerInvoiceID string, err error)
	UpdateInvoice(ctx context.Context, providerInvoiceID string, draft InvoiceDraft) error
	GetInvoice(ctx context.Context, providerInvoiceID string) (*Status, error)
	FinalizeInvoice(ctx context.Context, providerInvoiceID string) (*Status, error)
	AddInvoiceItem(ctx context.Context, providerInvoiceID string, item Item) (providerItemID string, err error)
	UpdateInvoiceItem(ctx context.Context, providerItemID string, item Item) error
	CollectPayment(ctx context.Context, providerInvoiceID, paymentMethodID string) error
	SendInvoice(ctx context.Context, providerInvoiceID string) error
	GetStatusInvoice(ctx context.Context, providerInvoiceID string) (*Status, error)

	// FormatAmount converts a decimal major-unit amount to the provider's
	// minor-unit representation (cents), rounding per the provider's
	// currency exponent rules.
	FormatAmount(amount decimal.Decimal, currency string) int64
}
