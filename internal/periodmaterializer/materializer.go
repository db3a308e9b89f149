// Package periodmaterializer implements PeriodMaterializer (spec.md §4.6):
// the BILLING_PERIOD invoke of the subscription machine, turning a phase's
// items into BillingPeriod rows, plus the mid-cycle plan-change split.
package periodmaterializer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/creditgrant"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/proration"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/idempotency"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

type Materializer struct {
	periods      subscription.BillingPeriodRepository
	phases       subscription.PhaseRepository
	items        subscription.ItemRepository
	planVersions plan.VersionRepository
	creditGrants creditgrant.Repository
	proration    proration.Calculator
	logger       *logger.Logger
}

func New(
	periods subscription.BillingPeriodRepository,
	phases subscription.PhaseRepository,
	items subscription.ItemRepository,
	planVersions plan.VersionRepository,
	creditGrants creditgrant.Repository,
	prorationCalc proration.Calculator,
	log *logger.Logger,
) *Materializer {
	return &Materializer{
		periods:      periods,
		phases:       phases,
		items:        items,
		planVersions: planVersions,
		creditGrants: creditGrants,
		proration:    prorationCalc,
		logger:       log,
	}
}

// Materialize implements spec.md §4.6 steps 1-3 for one phase: compute the
// phase's cycle window at now from its PlanVersion's billing config, and
// insert a BillingPeriod per item if one doesn't already exist for that
// window. A conflict on the uniqueness index (GetByUniqueKey finding a row
// already there) is swallowed, making repeated calls idempotent.
func (m *Materializer) Materialize(ctx context.Context, sub *subscription.Subscription, phase *subscription.SubscriptionPhase, now time.Time) ([]*subscription.BillingPeriod, error) {
	pv, err := m.planVersions.Get(ctx, phase.PlanVersionID)
	if err != nil {
		return nil, err
	}

	window, err := calendar.CycleWindow(calendar.Params{
		EffectiveStartDate: phase.StartAt,
		EffectiveEndDate:   phase.EndAt,
		TrialEndsAt:        phase.TrialEndsAt,
		Billing: calendar.BillingConfig{
			Interval:      pv.Interval,
			IntervalCount: pv.IntervalCount,
			Anchor:        pv.Anchor,
		},
	}, now)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, nil
	}

	items, err := m.items.ListByPhase(ctx, phase.ID)
	if err != nil {
		return nil, err
	}

	periodType := types.BillingPeriodTypeNormal
	if phase.TrialEndsAt != nil && now.Before(*phase.TrialEndsAt) {
		periodType = types.BillingPeriodTypeTrial
	}

	invoiceAt := window.End.Unix()
	if pv.WhenToBill == types.WhenToBillPayInAdvance {
		invoiceAt = window.Start.Unix()
	}
	statementKey := idempotency.StatementKey(sub.ProjectID, sub.CustomerID, sub.ID, invoiceAt, pv.Currency, pv.PaymentProvider, string(pv.CollectionMethod))

	materialized := make([]*subscription.BillingPeriod, 0, len(items))
	for _, item := range items {
		existing, err := m.periods.GetByUniqueKey(ctx, sub.ID, phase.ID, item.ID, window.Start.Unix(), window.End.Unix())
		if err != nil && !ierr.IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			materialized = append(materialized, existing)
			continue
		}

		bp := &subscription.BillingPeriod{
			ProjectID:           sub.ProjectID,
			SubscriptionID:      sub.ID,
			SubscriptionPhaseID: phase.ID,
			SubscriptionItemID:  item.ID,
			CycleStartAt:        window.Start,
			CycleEndAt:          window.End,
			Status:              types.BillingPeriodStatusPending,
			Type:                periodType,
			WhenToBill:          pv.WhenToBill,
			InvoiceAt:           invoiceAt,
			StatementKey:        statementKey,
		}
		if periodType == types.BillingPeriodTypeTrial {
			zero := int64(0)
			bp.AmountEstimateCents = &zero
		}

		if err := m.periods.Create(ctx, bp); err != nil {
			if ierr.IsAlreadyExists(err) {
				m.logger.Debugw("billing period already materialized, skipping",
					"subscription_id", sub.ID, "phase_id", phase.ID, "item_id", item.ID)
				continue
			}
			return nil, err
		}
		materialized = append(materialized, bp)
	}

	return materialized, nil
}

// MidCycleChangeInput is the input to a mid-cycle plan change split.
type MidCycleChangeInput struct {
	Subscription     *subscription.Subscription
	OldPhase         *subscription.SubscriptionPhase
	NewPlanVersionID string
	// ItemOriginalAmountCents is, per subscription item, the amount already
	// invoiced in advance for the outgoing phase's full current cycle —
	// owned by the billing history (InvoiceFinalizer), not by this package.
	ItemOriginalAmountCents map[string]int64
	Now                     time.Time
}

// MidCycleChangeResult is the split's output.
type MidCycleChangeResult struct {
	NewPhase     *subscription.SubscriptionPhase
	Periods      []*subscription.BillingPeriod
	CreditGrants []*creditgrant.CreditGrant
}

// HandleMidCycleChange implements spec.md §4.6 step 4: close the old phase
// at now, open a new one, and emit a mid_cycle_change period for the
// remainder of the outgoing phase's current cycle for each item. When the
// outgoing phase billed pay-in-advance, a CreditGrant equal to
// originalAmount × (remainingDays / fullCycleDays) rounded is issued per
// item, since the customer already paid for days past the change.
func (m *Materializer) HandleMidCycleChange(ctx context.Context, in MidCycleChangeInput) (MidCycleChangeResult, error) {
	oldPV, err := m.planVersions.Get(ctx, in.OldPhase.PlanVersionID)
	if err != nil {
		return MidCycleChangeResult{}, err
	}

	in.OldPhase.EndAt = &in.Now
	if err := m.phases.Update(ctx, in.OldPhase); err != nil {
		return MidCycleChangeResult{}, err
	}

	newPhase := &subscription.SubscriptionPhase{
		SubscriptionID:      in.Subscription.ID,
		PlanVersionID:       in.NewPlanVersionID,
		StartAt:             in.Now,
		CurrentCycleStartAt: in.Now,
		BillingAnchor:       in.Now,
	}
	if err := m.phases.Create(ctx, newPhase); err != nil {
		return MidCycleChangeResult{}, err
	}

	items, err := m.items.ListByPhase(ctx, in.OldPhase.ID)
	if err != nil {
		return MidCycleChangeResult{}, err
	}

	remainderEnd := in.OldPhase.CurrentCycleEndAt
	statementKey := idempotency.StatementKey(
		in.Subscription.ProjectID, in.Subscription.CustomerID, in.Subscription.ID,
		in.Now.Unix(), oldPV.Currency, oldPV.PaymentProvider, string(oldPV.CollectionMethod))

	periods := make([]*subscription.BillingPeriod, 0, len(items))
	grants := make([]*creditgrant.CreditGrant, 0, len(items))

	factorStrategy := types.ProrationStrategyDayBased
	for _, item := range items {
		bp := &subscription.BillingPeriod{
			ProjectID:           in.Subscription.ProjectID,
			SubscriptionID:      in.Subscription.ID,
			SubscriptionPhaseID: in.OldPhase.ID,
			SubscriptionItemID:  item.ID,
			CycleStartAt:        in.OldPhase.CurrentCycleStartAt,
			CycleEndAt:          in.Now,
			Status:              types.BillingPeriodStatusPending,
			Type:                types.BillingPeriodTypeMidCycleChange,
			WhenToBill:          oldPV.WhenToBill,
			InvoiceAt:           in.Now.Unix(),
			StatementKey:        statementKey,
		}
		periods = append(periods, bp)

		if oldPV.WhenToBill != types.WhenToBillPayInAdvance {
			continue
		}
		originalAmount, ok := in.ItemOriginalAmountCents[item.ID]
		if !ok || originalAmount == 0 {
			continue
		}

		factor, err := m.proration.Calculate(ctx, proration.FactorParams{
			CycleStart:       in.OldPhase.CurrentCycleStartAt,
			CycleEnd:         remainderEnd,
			ProrationDate:    in.Now,
			CustomerTimezone: in.Subscription.Timezone,
			Strategy:         factorStrategy,
		})
		if err != nil {
			return MidCycleChangeResult{}, err
		}

		creditAmount := decimal.NewFromInt(originalAmount).Mul(factor).Round(0)
		if creditAmount.Sign() <= 0 {
			continue
		}

		grant := &creditgrant.CreditGrant{
			CustomerID:      in.Subscription.CustomerID,
			Currency:        oldPV.Currency,
			PaymentProvider: oldPV.PaymentProvider,
			TotalAmount:     creditAmount,
			Reason:          types.CreditGrantReasonDowngradeInAdvance,
			Active:          true,
		}
		created, err := m.creditGrants.Create(ctx, grant)
		if err != nil {
			return MidCycleChangeResult{}, err
		}
		grants = append(grants, created)
	}

	return MidCycleChangeResult{NewPhase: newPhase, Periods: periods, CreditGrants: grants}, nil
}
