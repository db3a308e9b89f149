package types

// MachineEventType is one of the external events SubscriptionMachine
// accepts on its per-instance FIFO queue (spec.md §4.10). PaymentCollector
// is the first caller wired against it, emitting PAYMENT_SUCCESS/
// PAYMENT_FAILURE after a collection attempt resolves.
type MachineEventType string

const (
	MachineEventBillingPeriod  MachineEventType = "BILLING_PERIOD"
	MachineEventRenew          MachineEventType = "RENEW"
	MachineEventInvoice        MachineEventType = "INVOICE"
	MachineEventCancel         MachineEventType = "CANCEL"
	MachineEventChange         MachineEventType = "CHANGE"
	MachineEventPaymentSuccess MachineEventType = "PAYMENT_SUCCESS"
	MachineEventPaymentFailure MachineEventType = "PAYMENT_FAILURE"
	MachineEventInvoiceSuccess MachineEventType = "INVOICE_SUCCESS"
	MachineEventInvoiceFailure MachineEventType = "INVOICE_FAILURE"

	// MachineEventPause and MachineEventResume are not in spec.md's event
	// list; they drive the pausing/resuming transitional states added for
	// the teacher's pause/resume lifecycle concept (see subscription.Pause).
	MachineEventPause  MachineEventType = "PAUSE"
	MachineEventResume MachineEventType = "RESUME"
)
