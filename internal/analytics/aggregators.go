package analytics

import (
	"fmt"

	"github.com/usagebilling/core/internal/domain/aggregation"
	"github.com/usagebilling/core/internal/types"
)

// GetAggregator returns the query builder for an AggregationType, or nil
// if the type has no registered builder.
func GetAggregator(t types.AggregationType) aggregation.Aggregator {
	switch t {
	case types.AggregationSum, types.AggregationSumAll:
		return &sumAggregator{}
	case types.AggregationMax, types.AggregationMaxAll:
		return &maxAggregator{}
	case types.AggregationCount, types.AggregationCountAll:
		return &countAggregator{}
	case types.AggregationLastDuringPeriod:
		return &lastDuringPeriodAggregator{}
	default:
		return nil
	}
}

// whereClause builds the common PREWHERE predicate and argument list every
// aggregator shares: event name, customer, cursor, and optional window
// start. Placeholders are positional ClickHouse `?` params, never string
// interpolation, to keep this free of SQL injection regardless of what a
// caller passes as EventName/ExternalCustomerID.
func whereClause(q aggregation.Query) (string, []any) {
	clause := "event_name = ? AND external_customer_id = ?"
	args := []any{q.EventName, q.ExternalCustomerID}

	if q.SinceEventID != "" {
		clause += " AND id > ?"
		args = append(args, q.SinceEventID)
	}
	if !q.WindowStart.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, q.WindowStart.UTC())
	}
	return clause, args
}

type sumAggregator struct{}

func (a *sumAggregator) GetType() types.AggregationType { return types.AggregationSum }

func (a *sumAggregator) GetQuery(q aggregation.Query) (string, []any) {
	where, args := whereClause(q)
	sql := fmt.Sprintf(`
		SELECT sum(JSONExtractFloat(properties, ?)) AS value, max(id) AS last_id
		FROM usage_events
		PREWHERE %s`, where)
	return sql, append([]any{q.PropertyName}, args...)
}

type maxAggregator struct{}

func (a *maxAggregator) GetType() types.AggregationType { return types.AggregationMax }

func (a *maxAggregator) GetQuery(q aggregation.Query) (string, []any) {
	where, args := whereClause(q)
	sql := fmt.Sprintf(`
		SELECT max(JSONExtractFloat(properties, ?)) AS value, max(id) AS last_id
		FROM usage_events
		PREWHERE %s`, where)
	return sql, append([]any{q.PropertyName}, args...)
}

type countAggregator struct{}

func (a *countAggregator) GetType() types.AggregationType { return types.AggregationCount }

func (a *countAggregator) GetQuery(q aggregation.Query) (string, []any) {
	where, args := whereClause(q)
	sql := fmt.Sprintf(`
		SELECT count(DISTINCT id) AS value, max(id) AS last_id
		FROM usage_events
		PREWHERE %s`, where)
	return sql, args
}

type lastDuringPeriodAggregator struct{}

func (a *lastDuringPeriodAggregator) GetType() types.AggregationType {
	return types.AggregationLastDuringPeriod
}

func (a *lastDuringPeriodAggregator) GetQuery(q aggregation.Query) (string, []any) {
	where, args := whereClause(q)
	sql := fmt.Sprintf(`
		SELECT argMax(JSONExtractFloat(properties, ?), timestamp) AS value, max(id) AS last_id
		FROM usage_events
		PREWHERE %s`, where)
	return sql, append([]any{q.PropertyName}, args...)
}
