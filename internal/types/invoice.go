package types

// InvoiceStatus is the lifecycle status of an Invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusWaiting InvoiceStatus = "waiting"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
	InvoiceStatusFailed  InvoiceStatus = "failed"
)

// InvoiceItemKind distinguishes what an InvoiceItem represents.
type InvoiceItemKind string

const (
	InvoiceItemKindPeriod        InvoiceItemKind = "period"
	InvoiceItemKindTrial         InvoiceItemKind = "trial"
	InvoiceItemKindAdjustment    InvoiceItemKind = "adjustment"
	InvoiceItemKindCreditApplied InvoiceItemKind = "credit_applied"
)
