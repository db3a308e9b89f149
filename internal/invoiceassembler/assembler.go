// Package invoiceassembler implements InvoiceAssembler (spec.md §4.7): the
// invoiceSubscription invoke of the subscription machine, grouping due
// BillingPeriods by statementKey into draft Invoices and priced
// InvoiceItems.
package invoiceassembler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/domain/proration"
	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/pricing"
	"github.com/usagebilling/core/internal/types"
)

// ItemPricingContext is everything needed to price one SubscriptionItem's
// quantity for one billing window: the feature's metering shape (for
// usage-based items) plus the active grants and formula to waterfall
// against. It collapses the FeaturePlanVersion → Feature → Meter → Price →
// active-grants join into one seam; DataStore's seam.AssemblerAdapter
// satisfies it, as the same package does for entitlementevaluator's seams.
type ItemPricingContext struct {
	AggregationMethod types.AggregationType
	EventName         string
	PropertyName      string
	Grants            []pricing.GrantAllowance
	Formula           *price.Price
}

// PricingSource resolves an ItemPricingContext for a subscription item as
// of a point in time (grants active asOf matter for waterfall ordering).
type PricingSource interface {
	Context(ctx context.Context, subscriptionID, featurePlanVersionID string, asOf int64) (ItemPricingContext, error)
}

type Assembler struct {
	periods      subscription.BillingPeriodRepository
	items        subscription.ItemRepository
	phases       subscription.PhaseRepository
	planVersions plan.VersionRepository
	subs         subscription.Repository
	customers    customer.Repository
	invoices     invoice.Repository
	pricingSrc   PricingSource
	usage        analytics.UsageStore
	proration    proration.Calculator
	logger       *logger.Logger
}

func New(
	periods subscription.BillingPeriodRepository,
	items subscription.ItemRepository,
	phases subscription.PhaseRepository,
	planVersions plan.VersionRepository,
	subs subscription.Repository,
	customers customer.Repository,
	invoices invoice.Repository,
	pricingSrc PricingSource,
	usage analytics.UsageStore,
	prorationCalc proration.Calculator,
	log *logger.Logger,
) *Assembler {
	return &Assembler{
		periods:      periods,
		items:        items,
		phases:       phases,
		planVersions: planVersions,
		subs:         subs,
		customers:    customers,
		invoices:     invoices,
		pricingSrc:   pricingSrc,
		usage:        usage,
		proration:    prorationCalc,
		logger:       log,
	}
}

// groupKey is the (phaseId, statementKey, invoiceAt) tuple spec.md §4.7
// step 1 groups due periods by.
type groupKey struct {
	phaseID      string
	statementKey string
	invoiceAt    int64
}

// Assemble implements spec.md §4.7 in full for one subscription: select due
// periods, group them, insert or extend a draft Invoice per group, price
// and insert one InvoiceItem per period, then flip those periods to
// invoiced. Returns the invoices touched (created or extended).
func (a *Assembler) Assemble(ctx context.Context, subscriptionID string, now time.Time) ([]*invoice.Invoice, error) {
	due, err := a.periods.ListDue(ctx, subscriptionID, now.Unix())
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	sub, err := a.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	cust, err := a.customers.Get(ctx, sub.CustomerID)
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey][]*subscription.BillingPeriod)
	order := make([]groupKey, 0)
	for _, bp := range due {
		k := groupKey{phaseID: bp.SubscriptionPhaseID, statementKey: bp.StatementKey, invoiceAt: bp.InvoiceAt}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], bp)
	}

	touched := make([]*invoice.Invoice, 0, len(order))
	for _, k := range order {
		periods := groups[k]
		inv, err := a.assembleGroup(ctx, sub, cust, k, periods, now)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			touched = append(touched, inv)
		}
	}
	return touched, nil
}

func (a *Assembler) assembleGroup(ctx context.Context, sub *subscription.Subscription, cust *customer.Customer, k groupKey, periods []*subscription.BillingPeriod, now time.Time) (*invoice.Invoice, error) {
	phase, err := a.phases.Get(ctx, k.phaseID)
	if err != nil {
		return nil, err
	}
	pv, err := a.planVersions.Get(ctx, phase.PlanVersionID)
	if err != nil {
		return nil, err
	}

	statementStartAt, statementEndAt := periods[0].CycleStartAt, periods[0].CycleEndAt
	for _, bp := range periods[1:] {
		if bp.CycleStartAt.Before(statementStartAt) {
			statementStartAt = bp.CycleStartAt
		}
		if bp.CycleEndAt.After(statementEndAt) {
			statementEndAt = bp.CycleEndAt
		}
	}

	items := make([]*invoice.InvoiceItem, 0, len(periods))
	periodIDs := make([]string, 0, len(periods))
	for _, bp := range periods {
		item, err := a.priceItem(ctx, sub, cust, phase, bp)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		periodIDs = append(periodIDs, bp.ID)
	}

	existing, err := a.invoices.GetByStatementKey(ctx, sub.ProjectID, k.statementKey)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	var inv *invoice.Invoice
	if existing != nil {
		for _, item := range items {
			item.InvoiceID = existing.ID
		}
		if err := a.invoices.AddItems(ctx, existing.ID, items); err != nil {
			return nil, err
		}
		existing.Subtotal = existing.Subtotal.Add(sumItemTotals(items))
		existing.RecomputeTotal()
		if err := a.invoices.Update(ctx, existing); err != nil {
			return nil, err
		}
		inv = existing
	} else {
		dueAt, pastDueAt := dueDates(time.Unix(k.invoiceAt, 0).UTC(), pv)
		inv = &invoice.Invoice{
			ProjectID:           sub.ProjectID,
			SubscriptionID:      sub.ID,
			SubscriptionPhaseID: phase.ID,
			CustomerID:          sub.CustomerID,
			Status:              types.InvoiceStatusDraft,
			StatementKey:        k.statementKey,
			StatementStartAt:    statementStartAt,
			StatementEndAt:      statementEndAt,
			CycleStartAt:        statementStartAt,
			CycleEndAt:          statementEndAt,
			DueAt:               dueAt,
			PastDueAt:           pastDueAt,
			Subtotal:            sumItemTotals(items),
			PaymentProvider:     pv.PaymentProvider,
			Currency:            pv.Currency,
			WhenToBill:          pv.WhenToBill,
			CollectionMethod:    pv.CollectionMethod,
		}
		inv.RecomputeTotal()
		if err := a.invoices.CreateWithItems(ctx, inv, items); err != nil {
			return nil, err
		}
	}

	if err := a.periods.AttachToInvoice(ctx, periodIDs, inv.ID); err != nil {
		return nil, err
	}

	a.logger.Debugw("assembled invoice group",
		"subscription_id", sub.ID, "invoice_id", inv.ID, "statement_key", k.statementKey, "period_count", len(periods))

	return inv, nil
}

func sumItemTotals(items []*invoice.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.AmountTotal)
	}
	return total
}

// dueDates implements spec.md §4.7 step 3.
func dueDates(invoiceAt time.Time, pv *plan.PlanVersion) (dueAt, pastDueAt time.Time) {
	var grace time.Duration
	switch {
	case pv.Interval == types.IntervalMinute:
		grace = time.Minute
	case pv.WhenToBill == types.WhenToBillPayInAdvance:
		grace = 15 * time.Minute
	default:
		grace = 60 * time.Minute
	}
	dueAt = invoiceAt.Add(grace)
	pastDueAt = dueAt.AddDate(0, 0, pv.GracePeriodDays)
	return dueAt, pastDueAt
}

// priceItem prices one BillingPeriod into an InvoiceItem: waterfall the
// item's quantity against its active grants and formula, apply a
// proration factor (0 for trial; the elapsed-fraction-of-cycle factor for
// a mid-cycle-change period on a fixed-quantity item; 1 otherwise).
func (a *Assembler) priceItem(ctx context.Context, sub *subscription.Subscription, cust *customer.Customer, phase *subscription.SubscriptionPhase, bp *subscription.BillingPeriod) (*invoice.InvoiceItem, error) {
	item, err := a.items.Get(ctx, bp.SubscriptionItemID)
	if err != nil {
		return nil, err
	}

	pctx, err := a.pricingSrc.Context(ctx, sub.ID, item.FeaturePlanVersionID, bp.CycleEndAt.Unix())
	if err != nil {
		return nil, err
	}

	quantity := decimal.Zero
	if item.IsUsageBased() {
		quantity, err = a.queryQuantity(ctx, pctx, cust, bp)
		if err != nil {
			return nil, err
		}
	} else if item.Units != nil {
		quantity = decimal.NewFromInt(*item.Units)
	}

	charge := pricing.Waterfall(quantity, pctx.Grants, pctx.Formula)

	kind := types.InvoiceItemKindPeriod
	if bp.Type == types.BillingPeriodTypeTrial {
		kind = types.InvoiceItemKindTrial
	}

	invItem := &invoice.InvoiceItem{
		BillingPeriodID:      &bp.ID,
		SubscriptionItemID:   &item.ID,
		FeaturePlanVersionID: &item.FeaturePlanVersionID,
		Kind:                 kind,
		Quantity:             quantity,
		AmountSubtotal:       charge.Subtotal,
		CycleStartAt:         bp.CycleStartAt,
		CycleEndAt:           bp.CycleEndAt,
	}

	switch {
	case bp.Type == types.BillingPeriodTypeTrial:
		zero := decimal.Zero
		invItem.ProrationFactor = &zero
	case bp.Type == types.BillingPeriodTypeMidCycleChange && !item.IsUsageBased():
		factor, err := a.midCycleFactor(ctx, sub, phase, bp)
		if err != nil {
			return nil, err
		}
		invItem.ProrationFactor = &factor
	}
	invItem.ApplyProration()

	return invItem, nil
}

// midCycleFactor computes the elapsed fraction of the full (untruncated)
// cycle that bp's partial window covers, for proration-scaling a fixed
// per-cycle charge (e.g. seats) on a mid-cycle-change period. It reuses
// the day-based Calculator already built for PeriodMaterializer's credit
// side, applied to the complementary (elapsed, not remaining) fraction.
func (a *Assembler) midCycleFactor(ctx context.Context, sub *subscription.Subscription, phase *subscription.SubscriptionPhase, bp *subscription.BillingPeriod) (decimal.Decimal, error) {
	fullEnd := phase.CurrentCycleEndAt
	if !fullEnd.After(bp.CycleStartAt) {
		fullEnd = bp.CycleEndAt
	}

	remaining, err := a.proration.Calculate(ctx, proration.FactorParams{
		CycleStart:       bp.CycleStartAt,
		CycleEnd:         fullEnd,
		ProrationDate:    bp.CycleEndAt,
		CustomerTimezone: sub.Timezone,
		Strategy:         types.ProrationStrategyDayBased,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(1).Sub(remaining), nil
}

func (a *Assembler) queryQuantity(ctx context.Context, pctx ItemPricingContext, cust *customer.Customer, bp *subscription.BillingPeriod) (decimal.Decimal, error) {
	reading, err := a.usage.QueryUsage(ctx, pctx.AggregationMethod, aggregation.Query{
		EventName:          pctx.EventName,
		PropertyName:       pctx.PropertyName,
		ExternalCustomerID: cust.ExternalID,
		WindowStart:        bp.CycleStartAt,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return reading.Value, nil
}
