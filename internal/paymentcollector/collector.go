// Package paymentcollector implements PaymentCollector (spec.md §4.9): the
// pass that drives {unpaid, waiting} invoices to a terminal state against
// the payment provider.
package paymentcollector

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/domain/invoice"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/provider"
	"github.com/usagebilling/core/internal/types"
)

// failureReasonPendingExpiration is the one failure reason spec.md §4.9
// names: an invoice exhausted its attempt budget or sat past pastDueAt
// without ever collecting.
const failureReasonPendingExpiration = "pending_expiration"

// EventEmitter is SubscriptionMachine's inbound event queue, the seam
// PaymentCollector reports PAYMENT_SUCCESS/PAYMENT_FAILURE through. Nil is
// a valid *Collector.events value; events are then not emitted.
type EventEmitter interface {
	Emit(ctx context.Context, subscriptionID string, event types.MachineEventType) error
}

type Collector struct {
	invoices invoice.Repository
	provider provider.PaymentProvider
	events   EventEmitter
	logger   *logger.Logger
}

func New(invoices invoice.Repository, paymentProvider provider.PaymentProvider, events EventEmitter, log *logger.Logger) *Collector {
	return &Collector{invoices: invoices, provider: paymentProvider, events: events, logger: log}
}

// Collect implements spec.md §4.9 for every invoice currently in
// {unpaid, waiting}. One invoice's failure never blocks the rest of the
// batch; it is logged and skipped.
func (c *Collector) Collect(ctx context.Context, now time.Time) ([]*invoice.Invoice, error) {
	candidates, err := c.invoices.ListDueForCollection(ctx, now.Unix())
	if err != nil {
		return nil, err
	}

	touched := make([]*invoice.Invoice, 0, len(candidates))
	for _, inv := range candidates {
		if err := c.collectOne(ctx, inv, now); err != nil {
			c.logger.Errorw("failed to collect invoice", "invoice_id", inv.ID, "error", err)
			continue
		}
		touched = append(touched, inv)
	}
	return touched, nil
}

func (c *Collector) collectOne(ctx context.Context, inv *invoice.Invoice, now time.Time) error {
	if c.exhausted(inv, now) {
		return c.fail(ctx, inv, now, failureReasonPendingExpiration)
	}

	switch inv.Status {
	case types.InvoiceStatusUnpaid:
		return c.collectUnpaid(ctx, inv, now)
	case types.InvoiceStatusWaiting:
		return c.pollWaiting(ctx, inv, now)
	default:
		return nil
	}
}

// exhausted is spec.md §4.9's shared terminal-failure guard, checked
// before acting on either state so a worn-out invoice never gets another
// attempt.
func (c *Collector) exhausted(inv *invoice.Invoice, now time.Time) bool {
	return len(inv.PaymentAttempts) >= invoice.MaxPaymentAttempts || inv.PastDueAt.Before(now)
}

func (c *Collector) collectUnpaid(ctx context.Context, inv *invoice.Invoice, now time.Time) error {
	providerID := ""
	if inv.InvoicePaymentProviderID != nil {
		providerID = *inv.InvoicePaymentProviderID
	}

	if inv.CollectionMethod == types.CollectionMethodSendInvoice {
		if err := c.provider.SendInvoice(ctx, providerID); err != nil {
			return err
		}
		sentAt := now
		inv.Status = types.InvoiceStatusWaiting
		inv.SentAt = &sentAt
		return c.invoices.Update(ctx, inv)
	}

	paymentMethodID := ""
	if inv.PaymentMethodID != nil {
		paymentMethodID = *inv.PaymentMethodID
	}

	if err := c.provider.CollectPayment(ctx, providerID, paymentMethodID); err != nil {
		if aerr := c.recordAttempt(ctx, inv, now, types.PaymentAttemptStatusFailed, err.Error()); aerr != nil {
			return aerr
		}
		return c.emit(ctx, inv, types.MachineEventPaymentFailure)
	}

	if err := c.recordAttempt(ctx, inv, now, types.PaymentAttemptStatusSucceeded, ""); err != nil {
		return err
	}
	paidAt := now
	inv.Status = types.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	if err := c.invoices.Update(ctx, inv); err != nil {
		return err
	}
	return c.emit(ctx, inv, types.MachineEventPaymentSuccess)
}

// pollWaiting implements the `waiting` branch: a send_invoice invoice has
// no webhook subscription here, so it is polled until the provider
// reports a terminal state.
func (c *Collector) pollWaiting(ctx context.Context, inv *invoice.Invoice, now time.Time) error {
	providerID := ""
	if inv.InvoicePaymentProviderID != nil {
		providerID = *inv.InvoicePaymentProviderID
	}

	status, err := c.provider.GetStatusInvoice(ctx, providerID)
	if err != nil {
		return err
	}

	switch {
	case status.Paid:
		paidAt := now
		inv.Status = types.InvoiceStatusPaid
		inv.PaidAt = &paidAt
		if err := c.invoices.Update(ctx, inv); err != nil {
			return err
		}
		return c.emit(ctx, inv, types.MachineEventPaymentSuccess)
	case status.Void:
		inv.Status = types.InvoiceStatusVoid
		return c.invoices.Update(ctx, inv)
	default:
		return nil
	}
}

func (c *Collector) recordAttempt(ctx context.Context, inv *invoice.Invoice, now time.Time, status types.PaymentAttemptStatus, failureCode string) error {
	attempt := invoice.PaymentAttempt{AttemptedAt: now, Status: status, FailureCode: failureCode}
	inv.PaymentAttempts = append(inv.PaymentAttempts, attempt)
	return c.invoices.AppendPaymentAttempt(ctx, inv.ID, attempt)
}

func (c *Collector) fail(ctx context.Context, inv *invoice.Invoice, now time.Time, reason string) error {
	inv.Status = types.InvoiceStatusFailed
	inv.FailureReason = &reason
	if err := c.invoices.Update(ctx, inv); err != nil {
		return err
	}
	return c.emit(ctx, inv, types.MachineEventInvoiceFailure)
}

func (c *Collector) emit(ctx context.Context, inv *invoice.Invoice, event types.MachineEventType) error {
	if c.events == nil {
		return nil
	}
	return c.events.Emit(ctx, inv.SubscriptionID, event)
}
