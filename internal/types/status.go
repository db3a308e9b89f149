package types

// Status is the lifecycle status of a persisted row, independent of any
// domain-specific state machine (subscription status, invoice status, ...).
type Status string

const (
	StatusActive   Status = "active"
	StatusDeleted  Status = "deleted"
	StatusArchived Status = "archived"
)
