package aggregation

import (
	"time"

	"github.com/usagebilling/core/internal/types"
)

// Query describes one incremental usage fetch: the aggregated value of
// every event matching (EventName, ExternalCustomerID) with a cursor past
// SinceEventID, no earlier than WindowStart. UsageMeter.reconcile issues
// one of these per feature per reconciliation and folds the result into
// meter.usage (or accumulatedUsage for an "_all" AggregationType).
type Query struct {
	EventName          string
	PropertyName       string
	ExternalCustomerID string

	// SinceEventID is the cursor from the entitlement's last reconciliation;
	// empty means "from the start of the window".
	SinceEventID string

	// WindowStart bounds the query to the current cycle; the zero value
	// means unbounded, which an "_all" aggregation type uses so it keeps
	// reading from the feature's very first event.
	WindowStart time.Time
}

// Aggregator builds the parameterized query and argument list that compute
// one AggregationType's incremental value for a Query. Implementations
// live in internal/analytics, kept behind this interface so the core
// engine never imports a ClickHouse driver type directly.
type Aggregator interface {
	GetQuery(q Query) (sql string, args []any)
	GetType() types.AggregationType
}
