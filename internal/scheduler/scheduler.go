// Package scheduler implements the five periodic sweeps of spec.md §4.11:
// periods, renew, invoicing, finalize, and billing. Each sweep selects due
// rows (capped per spec.md §6) and fans work out per subscription with
// bounded concurrency; SubscriptionMachine's own SubscriptionLock acquire
// inside Run enforces that at most one task is ever active for a given
// (projectId, subscriptionId), so the fan-out here only needs to bound
// total concurrency, not avoid collisions.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/invoicefinalizer"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/paymentcollector"
	"github.com/usagebilling/core/internal/periodmaterializer"
	"github.com/usagebilling/core/internal/subscriptionmachine"
	"github.com/usagebilling/core/internal/types"
)

// Scheduler owns the five robfig/cron/v3 entries and the fan-out pools that
// back them. None of its jobs run a DB transaction directly; each delegates
// to the component that already owns its piece of spec.md §4 (the machine,
// PeriodMaterializer, InvoiceFinalizer, PaymentCollector).
type Scheduler struct {
	cfg          config.SchedulerConfig
	subs         subscription.Repository
	phases       subscription.PhaseRepository
	periods      subscription.BillingPeriodRepository
	machine      *subscriptionmachine.Machine
	materializer *periodmaterializer.Materializer
	finalizer    *invoicefinalizer.Finalizer
	collector    *paymentcollector.Collector
	logger       *logger.Logger

	cron *cron.Cron
}

func New(
	cfg config.SchedulerConfig,
	subs subscription.Repository,
	phases subscription.PhaseRepository,
	periods subscription.BillingPeriodRepository,
	machine *subscriptionmachine.Machine,
	materializer *periodmaterializer.Materializer,
	finalizer *invoicefinalizer.Finalizer,
	collector *paymentcollector.Collector,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		subs:         subs,
		phases:       phases,
		periods:      periods,
		machine:      machine,
		materializer: materializer,
		finalizer:    finalizer,
		collector:    collector,
		logger:       log,
		cron:         cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the five sweeps against their configured cron expressions
// and begins the cron runner's own goroutine. It returns an error only if a
// cron expression fails to parse.
func (s *Scheduler) Start(ctx context.Context) error {
	entries := []struct {
		expr string
		job  func()
	}{
		{s.cfg.PeriodsCron, func() { s.runPeriods(ctx) }},
		{s.cfg.RenewCron, func() { s.runRenew(ctx) }},
		{s.cfg.InvoicingCron, func() { s.runInvoicing(ctx) }},
		{s.cfg.FinalizeCron, func() { s.runFinalize(ctx) }},
		{s.cfg.BillingCron, func() { s.runBilling(ctx) }},
	}
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.expr, e.job); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop blocks until any in-flight sweep invocations return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runPeriods implements the `periods` sweep: select due phases (cap
// PeriodsBatchCap) and trigger PeriodMaterializer for each.
func (s *Scheduler) runPeriods(ctx context.Context) {
	now := time.Now()
	due, err := s.phases.ListDueForMaterialization(ctx, now.Unix(), s.cfg.PeriodsBatchCap)
	if err != nil {
		s.logger.Errorw("periods sweep: failed to list due phases", "error", err)
		return
	}

	p := pool.New().WithMaxGoroutines(s.cfg.ProviderConcurrency)
	for _, phase := range due {
		phase := phase
		p.Go(func() {
			sub, err := s.subs.Get(ctx, phase.SubscriptionID)
			if err != nil {
				s.logger.Errorw("periods sweep: failed to load subscription", "subscription_id", phase.SubscriptionID, "error", err)
				return
			}
			if _, err := s.materializer.Materialize(ctx, sub, phase, now); err != nil {
				s.logger.Errorw("periods sweep: materialize failed", "subscription_id", phase.SubscriptionID, "error", err)
			}
		})
	}
	p.Wait()
}

// runRenew implements the `renew` sweep: select phases due to renew (cap
// RenewBatchCap) and emit RENEW at each owning subscription's machine.
func (s *Scheduler) runRenew(ctx context.Context) {
	now := time.Now()
	due, err := s.phases.ListDueForRenewal(ctx, now.Unix(), s.cfg.RenewBatchCap)
	if err != nil {
		s.logger.Errorw("renew sweep: failed to list due phases", "error", err)
		return
	}

	p := pool.New().WithMaxGoroutines(s.cfg.ProviderConcurrency)
	for _, phase := range due {
		phase := phase
		p.Go(func() {
			if _, err := s.machine.Run(ctx, phase.SubscriptionID, types.MachineEventRenew, subscriptionmachine.EventPayload{}, now); err != nil {
				s.logger.Errorw("renew sweep: machine run failed", "subscription_id", phase.SubscriptionID, "error", err)
			}
		})
	}
	p.Wait()
}

// runInvoicing implements the `invoicing` sweep: select the distinct
// subscriptions owning a due billing period (cap InvoicingBatchCap) and emit
// INVOICE at each one's machine; InvoiceAssembler itself groups periods by
// statementKey within that call.
func (s *Scheduler) runInvoicing(ctx context.Context) {
	now := time.Now()
	subIDs, err := s.periods.ListDueSubscriptionIDs(ctx, now.Unix(), s.cfg.InvoicingBatchCap)
	if err != nil {
		s.logger.Errorw("invoicing sweep: failed to list due subscriptions", "error", err)
		return
	}

	p := pool.New().WithMaxGoroutines(s.cfg.ProviderConcurrency)
	for _, subID := range subIDs {
		subID := subID
		p.Go(func() {
			if _, err := s.machine.Run(ctx, subID, types.MachineEventInvoice, subscriptionmachine.EventPayload{}, now); err != nil {
				s.logger.Errorw("invoicing sweep: machine run failed", "subscription_id", subID, "error", err)
			}
		})
	}
	p.Wait()
}

// runFinalize implements the `finalize` sweep: InvoiceFinalizer already
// scans every invoice due for finalization in one pass (spec.md §4.8),
// including its own bounded-concurrency provider sync, so the sweep is just
// a periodic trigger.
func (s *Scheduler) runFinalize(ctx context.Context) {
	if _, err := s.finalizer.Finalize(ctx, time.Now()); err != nil {
		s.logger.Errorw("finalize sweep failed", "error", err)
	}
}

// runBilling implements the `billing` sweep. spec.md §9's Open Question on
// finalize/bill ordering is resolved in favor of always finalizing drafts
// before attempting to collect them, so this sweep runs InvoiceFinalizer
// first and only then PaymentCollector — collecting against an invoice
// that never finalized would charge a stale total.
func (s *Scheduler) runBilling(ctx context.Context) {
	now := time.Now()
	if _, err := s.finalizer.Finalize(ctx, now); err != nil {
		s.logger.Errorw("billing sweep: finalize step failed", "error", err)
	}
	if _, err := s.collector.Collect(ctx, now); err != nil {
		s.logger.Errorw("billing sweep: collect step failed", "error", err)
	}
}
