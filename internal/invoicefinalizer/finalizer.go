// Package invoicefinalizer implements InvoiceFinalizer (spec.md §4.8): the
// repricing and credit-application pass that turns a draft invoice into an
// unpaid (or void) one, then syncs it to the payment provider.
package invoicefinalizer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/domain/creditgrant"
	"github.com/usagebilling/core/internal/domain/creditgrantapplication"
	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/pricing"
	"github.com/usagebilling/core/internal/provider"
	"github.com/usagebilling/core/internal/types"
)

// defaultSyncConcurrency bounds how many invoices are synced to the
// payment provider at once; the provider's own rate limit, not a DataStore
// constraint, is what this protects.
const defaultSyncConcurrency = 5

// PricingContext is the same per-item metering/pricing shape
// invoiceassembler.ItemPricingContext resolves, plus the feature slug
// InvoiceFinalizer needs for an "_all" aggregation's accumulated usage.
type PricingContext struct {
	AggregationMethod types.AggregationType
	EventName         string
	PropertyName      string
	FeatureSlug       string
	Grants            []pricing.GrantAllowance
	Formula           *price.Price
}

// PricingSource resolves a PricingContext for a subscription item as of a
// point in time, the same seam invoiceassembler depends on; DataStore's
// seam.FinalizerAdapter satisfies it.
type PricingSource interface {
	Context(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (PricingContext, error)
}

type Finalizer struct {
	invoices           invoice.Repository
	lineItems          invoice.LineItemRepository
	items              subscription.ItemRepository
	customers          customer.Repository
	entitlements       entitlement.Repository
	creditGrants       creditgrant.Repository
	creditApplications creditgrantapplication.Repository
	pricingSrc         PricingSource
	usage              analytics.UsageStore
	provider           provider.PaymentProvider
	syncConcurrency    int
	logger             *logger.Logger
}

func New(
	invoices invoice.Repository,
	lineItems invoice.LineItemRepository,
	items subscription.ItemRepository,
	customers customer.Repository,
	entitlements entitlement.Repository,
	creditGrants creditgrant.Repository,
	creditApplications creditgrantapplication.Repository,
	pricingSrc PricingSource,
	usage analytics.UsageStore,
	paymentProvider provider.PaymentProvider,
	log *logger.Logger,
) *Finalizer {
	return &Finalizer{
		invoices:           invoices,
		lineItems:          lineItems,
		items:              items,
		customers:          customers,
		entitlements:       entitlements,
		creditGrants:       creditGrants,
		creditApplications: creditApplications,
		pricingSrc:         pricingSrc,
		usage:              usage,
		provider:           paymentProvider,
		syncConcurrency:    defaultSyncConcurrency,
		logger:             log,
	}
}

// Finalize implements spec.md §4.8 for every invoice due to be priced:
// reprice and apply credits sequentially (this is the DB-transactional
// half), then sync the priced invoices to the payment provider with
// bounded concurrency outside that transaction boundary.
func (f *Finalizer) Finalize(ctx context.Context, now time.Time) ([]*invoice.Invoice, error) {
	candidates, err := f.invoices.ListForFinalization(ctx, now.Unix())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	finalized := make([]*invoice.Invoice, 0, len(candidates))
	for _, inv := range candidates {
		if err := f.priceAndApplyCredits(ctx, inv, now); err != nil {
			f.logger.Errorw("failed to finalize invoice pricing", "invoice_id", inv.ID, "error", err)
			continue
		}
		finalized = append(finalized, inv)
	}

	p := pool.New().WithMaxGoroutines(f.syncConcurrency)
	for _, inv := range finalized {
		inv := inv
		p.Go(func() {
			if err := f.syncProvider(ctx, inv); err != nil {
				f.logger.Errorw("failed to sync provider invoice", "invoice_id", inv.ID, "error", err)
			}
		})
	}
	p.Wait()

	return finalized, nil
}

// priceAndApplyCredits implements spec.md §4.8 steps 1-5 for one invoice.
func (f *Finalizer) priceAndApplyCredits(ctx context.Context, inv *invoice.Invoice, now time.Time) error {
	items, err := f.lineItems.GetByInvoiceID(ctx, inv.ID)
	if err != nil {
		return err
	}
	cust, err := f.customers.Get(ctx, inv.CustomerID)
	if err != nil {
		return err
	}

	priced := make([]*invoice.InvoiceItem, 0, len(items))
	var creditItem *invoice.InvoiceItem
	subtotal := decimal.Zero
	for _, item := range items {
		switch item.Kind {
		case types.InvoiceItemKindCreditApplied:
			creditItem = item
			continue
		case types.InvoiceItemKindAdjustment:
			subtotal = subtotal.Add(item.AmountTotal)
			continue
		}
		if err := f.priceItem(ctx, inv, cust, item); err != nil {
			return err
		}
		priced = append(priced, item)
		subtotal = subtotal.Add(item.AmountTotal)
	}
	if len(priced) > 0 {
		if err := f.lineItems.UpdateAmounts(ctx, priced); err != nil {
			return err
		}
	}
	inv.Subtotal = subtotal

	if err := f.applyCredits(ctx, inv, cust, creditItem, now); err != nil {
		return err
	}

	inv.RecomputeTotal()
	if inv.Total.IsZero() {
		inv.Status = types.InvoiceStatusVoid
	} else {
		inv.Status = types.InvoiceStatusUnpaid
	}
	issueDate := now
	inv.IssueDate = &issueDate

	return f.invoices.Update(ctx, inv)
}

// priceItem implements spec.md §4.8 steps 1-2 for one item: requery
// quantity for metered items (reusing the analytics store directly for a
// cycle-scoped aggregation, or the entitlement's AccumulatedUsage for an
// "_all" one), then waterfall-price it against the item's active grants
// and formula, applying its existing ProrationFactor.
func (f *Finalizer) priceItem(ctx context.Context, inv *invoice.Invoice, cust *customer.Customer, item *invoice.InvoiceItem) error {
	if item.FeaturePlanVersionID == nil {
		return nil
	}

	pctx, err := f.pricingSrc.Context(ctx, inv.SubscriptionID, *item.FeaturePlanVersionID, item.CycleEndAt.Unix())
	if err != nil {
		return err
	}

	quantity := item.Quantity
	if item.SubscriptionItemID != nil {
		subItem, err := f.items.Get(ctx, *item.SubscriptionItemID)
		if err != nil {
			return err
		}
		if subItem.IsUsageBased() {
			quantity, err = f.queryQuantity(ctx, inv.ProjectID, pctx, cust, item)
			if err != nil {
				return err
			}
		}
	}

	charge := pricing.Waterfall(quantity, pctx.Grants, pctx.Formula)
	item.Quantity = quantity
	item.AmountSubtotal = charge.Subtotal
	if quantity.Sign() > 0 {
		unit := charge.Subtotal.Div(quantity)
		item.UnitAmountCents = &unit
	} else {
		item.UnitAmountCents = nil
	}
	item.ApplyProration()
	return nil
}

// queryQuantity requeries a metered item's quantity: an "_all" aggregation
// reads the entitlement's running AccumulatedUsage instead of issuing a
// fresh cycle-scoped query, since it was never meant to reset with the
// billing cycle in the first place.
func (f *Finalizer) queryQuantity(ctx context.Context, projectID string, pctx PricingContext, cust *customer.Customer, item *invoice.InvoiceItem) (decimal.Decimal, error) {
	if pctx.AggregationMethod.IgnoresCycleReset() {
		ent, err := f.entitlements.GetByCustomerFeature(ctx, projectID, cust.ID, pctx.FeatureSlug)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(ent.AccumulatedUsage), nil
	}

	reading, err := f.usage.QueryUsage(ctx, pctx.AggregationMethod, aggregation.Query{
		EventName:          pctx.EventName,
		PropertyName:       pctx.PropertyName,
		ExternalCustomerID: cust.ExternalID,
		WindowStart:        item.CycleStartAt,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return reading.Value, nil
}

// applyCredits implements spec.md §4.8 step 4: consume active credit
// grants FIFO by earliest expiresAt against the invoice's subtotal,
// recording one CreditGrantApplication per grant touched and folding the
// total applied into a single credit_applied InvoiceItem so the provider
// sync step (step 6) sees it as just another line.
func (f *Finalizer) applyCredits(ctx context.Context, inv *invoice.Invoice, cust *customer.Customer, creditItem *invoice.InvoiceItem, now time.Time) error {
	if inv.Subtotal.Sign() <= 0 {
		inv.AmountCreditUsed = decimal.Zero
		return nil
	}

	grants, err := f.creditGrants.ListActiveForApplication(ctx, cust.ID, inv.Currency, inv.PaymentProvider)
	if err != nil {
		return err
	}

	remaining := inv.Subtotal
	applied := decimal.Zero
	for _, grant := range grants {
		if remaining.Sign() <= 0 {
			break
		}
		amt := grant.Apply(remaining, now)
		if amt.Sign() <= 0 {
			continue
		}

		application := &creditgrantapplication.CreditGrantApplication{
			InvoiceID:     inv.ID,
			CreditGrantID: grant.ID,
			AmountApplied: amt,
		}
		if err := application.Validate(); err != nil {
			return err
		}
		if err := f.creditApplications.Create(ctx, application); err != nil {
			return err
		}
		if _, err := f.creditGrants.Update(ctx, grant); err != nil {
			return err
		}

		remaining = remaining.Sub(amt)
		applied = applied.Add(amt)
	}
	inv.AmountCreditUsed = applied

	if applied.Sign() <= 0 {
		return nil
	}

	negated := applied.Neg()
	if creditItem == nil {
		creditItem = &invoice.InvoiceItem{
			InvoiceID:      inv.ID,
			Kind:           types.InvoiceItemKindCreditApplied,
			Quantity:       decimal.Zero,
			AmountSubtotal: negated,
			AmountTotal:    negated,
			CycleStartAt:   inv.CycleStartAt,
			CycleEndAt:     inv.CycleEndAt,
			Description:    "credit applied",
		}
		if err := creditItem.Validate(); err != nil {
			return err
		}
		_, err = f.lineItems.Create(ctx, creditItem)
		return err
	}

	creditItem.AmountSubtotal = negated
	creditItem.AmountTotal = negated
	_, err = f.lineItems.Update(ctx, creditItem)
	return err
}

// syncProvider implements spec.md §4.8 step 6 for one already-priced
// invoice: upsert the provider invoice and its items keyed by
// subscriptionItemId (or "credit" for the credit_applied line), finalize
// it, and verify the provider's reported total matches before persisting
// provider ids.
func (f *Finalizer) syncProvider(ctx context.Context, inv *invoice.Invoice) error {
	cust, err := f.customers.Get(ctx, inv.CustomerID)
	if err != nil {
		return err
	}
	items, err := f.lineItems.GetByInvoiceID(ctx, inv.ID)
	if err != nil {
		return err
	}

	draft := provider.InvoiceDraft{
		ExternalCustomerID: cust.ExternalID,
		Currency:           inv.Currency,
		Description:        "invoice " + inv.StatementKey,
		AutoCollect:        inv.CollectionMethod == types.CollectionMethodChargeAutomatically,
		Metadata:           map[string]string{"invoice_id": inv.ID},
	}
	if inv.CollectionMethod == types.CollectionMethodSendInvoice {
		dueAt := inv.DueAt.Unix()
		draft.DueAt = &dueAt
	}

	providerID := ""
	if inv.InvoicePaymentProviderID != nil {
		providerID = *inv.InvoicePaymentProviderID
		if err := f.provider.UpdateInvoice(ctx, providerID, draft); err != nil {
			return err
		}
	} else {
		providerID, err = f.provider.CreateInvoice(ctx, draft)
		if err != nil {
			return err
		}
	}

	for _, item := range items {
		stableKey := "credit"
		if item.SubscriptionItemID != nil {
			stableKey = *item.SubscriptionItemID
		}
		providerItem := provider.Item{
			StableKey:   stableKey,
			AmountCents: f.provider.FormatAmount(item.AmountTotal, inv.Currency),
			Description: item.Description,
			Metadata:    map[string]string{"invoice_item_id": item.ID},
		}

		if item.ItemProviderID != nil {
			providerItem.ID = *item.ItemProviderID
			if err := f.provider.UpdateInvoiceItem(ctx, *item.ItemProviderID, providerItem); err != nil {
				return err
			}
			continue
		}

		itemProviderID, err := f.provider.AddInvoiceItem(ctx, providerID, providerItem)
		if err != nil {
			return err
		}
		item.ItemProviderID = &itemProviderID
		if _, err := f.lineItems.Update(ctx, item); err != nil {
			return err
		}
	}

	status, err := f.provider.FinalizeInvoice(ctx, providerID)
	if err != nil {
		return err
	}
	expected := f.provider.FormatAmount(inv.Total, inv.Currency)
	if status.Total != expected {
		return ierr.NewError("provider invoice total mismatch").
			WithReportableDetails(map[string]any{
				"invoice_id":     inv.ID,
				"expected_cents": expected,
				"provider_cents": status.Total,
			}).
			Mark(ierr.ErrInvariantViolation)
	}

	inv.InvoicePaymentProviderID = &providerID
	return f.invoices.Update(ctx, inv)
}
