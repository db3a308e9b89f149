package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/usagebilling/core/internal/config"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
)

// zeroDecimalCurrencies lists the ISO currencies Stripe charges in their
// major unit directly (no /100 conversion) — https://stripe.com/docs/currencies#zero-decimal.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// StripeProvider implements PaymentProvider against a single configured
// Stripe account. Multi-connection/multi-tenant credential resolution is
// out of scope; the core runs one provider per deployment, per
// config.ProviderConfig.
type StripeProvider struct {
	client *stripe.Client
	logger *logger.Logger
}

func NewStripeProvider(cfg *config.Configuration, logger *logger.Logger) *StripeProvider {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil

	return &StripeProvider{
		client: stripe.NewClient(cfg.Provider.StripeAPIKey, &stripe.Config{
			HTTPClient: retryClient.StandardClient(),
		}),
		logger: logger,
	}
}

func (p *StripeProvider) FormatAmount(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (p *StripeProvider) CreateInvoice(ctx context.Context, draft InvoiceDraft) (string, error) {
	params := &stripe.InvoiceCreateParams{
		Customer:    stripe.String(draft.ExternalCustomerID),
		Currency:    stripe.String(strings.ToLower(draft.Currency)),
		AutoAdvance: stripe.Bool(false),
		Description: stripe.String(draft.Description),
		Metadata:    draft.Metadata,
	}
	if draft.AutoCollect {
		params.CollectionMethod = stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically))
	} else {
		params.CollectionMethod = stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice))
		if draft.DueAt != nil {
			params.DueDate = stripe.Int64(*draft.DueAt)
		}
	}

	inv, err := p.client.V1Invoices.Create(ctx, params)
	if err != nil {
		p.logger.Errorw("failed to create provider invoice", "error", err, "customer_id", draft.ExternalCustomerID)
		return "", wrapStripeErr(err, "failed to create provider invoice")
	}
	return inv.ID, nil
}

func (p *StripeProvider) UpdateInvoice(ctx context.Context, providerInvoiceID string, draft InvoiceDraft) error {
	params := &stripe.InvoiceUpdateParams{
		Description: stripe.String(draft.Description),
		Metadata:    draft.Metadata,
	}
	if _, err := p.client.V1Invoices.Update(ctx, providerInvoiceID, params); err != nil {
		return wrapStripeErr(err, "failed to update provider invoice")
	}
	return nil
}

func (p *StripeProvider) GetInvoice(ctx context.Context, providerInvoiceID string) (*Status, error) {
	inv, err := p.client.V1Invoices.Retrieve(ctx, providerInvoiceID, nil)
	if err != nil {
		return nil, wrapStripeErr(err, "failed to retrieve provider invoice")
	}
	return statusFromStripeInvoice(inv), nil
}

func (p *StripeProvider) FinalizeInvoice(ctx context.Context, providerInvoiceID string) (*Status, error) {
	inv, err := p.client.V1Invoices.FinalizeInvoice(ctx, providerInvoiceID, &stripe.InvoiceFinalizeInvoiceParams{
		AutoAdvance: stripe.Bool(false),
	})
	if err != nil {
		return nil, wrapStripeErr(err, "failed to finalize provider invoice")
	}
	return statusFromStripeInvoice(inv), nil
}

func (p *StripeProvider) AddInvoiceItem(ctx context.Context, providerInvoiceID string, item Item) (string, error) {
	params := &stripe.InvoiceItemCreateParams{
		Invoice:     stripe.String(providerInvoiceID),
		Amount:      stripe.Int64(item.AmountCents),
		Description: stripe.String(item.Description),
		Metadata:    metadataWithKey(item),
	}
	created, err := p.client.V1InvoiceItems.Create(ctx, params)
	if err != nil {
		return "", wrapStripeErr(err, "failed to add provider invoice item")
	}
	return created.ID, nil
}

func (p *StripeProvider) UpdateInvoiceItem(ctx context.Context, providerItemID string, item Item) error {
	params := &stripe.InvoiceItemUpdateParams{
		Amount:      stripe.Int64(item.AmountCents),
		Description: stripe.String(item.Description),
		Metadata:    metadataWithKey(item),
	}
	if _, err := p.client.V1InvoiceItems.Update(ctx, providerItemID, params); err != nil {
		return wrapStripeErr(err, "failed to update provider invoice item")
	}
	return nil
}

func (p *StripeProvider) CollectPayment(ctx context.Context, providerInvoiceID, paymentMethodID string) error {
	params := &stripe.InvoicePayParams{}
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	if _, err := p.client.V1Invoices.Pay(ctx, providerInvoiceID, params); err != nil {
		return wrapStripeErr(err, "failed to collect payment on provider invoice")
	}
	return nil
}

func (p *StripeProvider) SendInvoice(ctx context.Context, providerInvoiceID string) error {
	if _, err := p.client.V1Invoices.SendInvoice(ctx, providerInvoiceID, &stripe.InvoiceSendInvoiceParams{}); err != nil {
		return wrapStripeErr(err, "failed to send provider invoice")
	}
	return nil
}

func (p *StripeProvider) GetStatusInvoice(ctx context.Context, providerInvoiceID string) (*Status, error) {
	return p.GetInvoice(ctx, providerInvoiceID)
}

func statusFromStripeInvoice(inv *stripe.Invoice) *Status {
	return &Status{
		Paid:  inv.Status == stripe.InvoiceStatusPaid,
		Void:  inv.Status == stripe.InvoiceStatusVoid,
		Total: inv.Total,
	}
}

func metadataWithKey(item Item) map[string]string {
	md := make(map[string]string, len(item.Metadata)+1)
	for k, v := range item.Metadata {
		md[k] = v
	}
	md["stable_key"] = item.StableKey
	return md
}

func wrapStripeErr(err error, hint string) error {
	code := ierr.ErrDependencyMissing
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 {
		code = ierr.ErrInvalidOperation
	}
	return ierr.NewError(err.Error()).WithHint(hint).Mark(code)
}
