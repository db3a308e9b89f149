package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is the result of one incremental usage fetch: the aggregated
// delta value since the caller's cursor, and the new cursor to persist.
type Reading struct {
	Value  decimal.Decimal
	Cursor string
}

// EventFilter scopes a row-level usage history query. Every field is
// optional; the zero value is unbounded for that field. Limit defaults to
// usageEventsDefaultLimit when zero or negative.
type EventFilter struct {
	EventName          string
	ExternalCustomerID string
	Start              time.Time
	End                time.Time
	Limit              int
}

// EventRow is one raw usage event as stored, newest first. Unlike Reading
// it is not aggregated — it backs customers.getUsage's row-level history
// contract rather than UsageMeter's incremental reconciliation.
type EventRow struct {
	ID                 string
	ExternalCustomerID string
	EventName          string
	Timestamp          time.Time
	Properties         map[string]any
}
