package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/config"
	"github.com/usagebilling/core/internal/domain/aggregation"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// usageEventsDefaultLimit bounds a QueryEvents call that doesn't set
// EventFilter.Limit, so a customers.getUsage call with wide-open filters
// can't pull an unbounded result set out of ClickHouse.
const usageEventsDefaultLimit = 1000

// UsageStore is the read surface the core needs against raw usage events:
// UsageMeter.reconcile's aggregated delta, and customers.getUsage's
// row-level history. Ingest and the rest of the analytics store's own
// query surface live outside the core.
type UsageStore interface {
	QueryUsage(ctx context.Context, aggType types.AggregationType, q aggregation.Query) (Reading, error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]EventRow, error)
}

// ClickHouseStore is the minimal ClickHouse-backed UsageStore.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(cfg *config.Configuration) (*ClickHouseStore, error) {
	conn, err := clickhouse_go.Open(cfg.ClickHouse.GetClientOptions())
	if err != nil {
		return nil, ierr.NewError(err.Error()).
			WithHint("failed to open clickhouse connection").
			Mark(ierr.ErrDependencyMissing)
	}
	return &ClickHouseStore{conn: conn}, nil
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// QueryUsage runs aggType's query and returns the delta value plus the new
// cursor. A nil last_id (no matching events) leaves Cursor at q.SinceEventID
// so reconcile doesn't regress a feature with no new activity.
func (s *ClickHouseStore) QueryUsage(ctx context.Context, aggType types.AggregationType, q aggregation.Query) (Reading, error) {
	aggregator := GetAggregator(aggType)
	if aggregator == nil {
		return Reading{}, ierr.NewError("unsupported aggregation type").
			WithHintf("no query builder registered for aggregation type '%s'", aggType).
			Mark(ierr.ErrValidation)
	}
	sql, args := aggregator.GetQuery(q)

	var value *float64
	var lastID *string
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&value, &lastID); err != nil {
		return Reading{}, ierr.NewError(err.Error()).
			WithHintf("failed to query usage for event '%s'", q.EventName).
			Mark(ierr.ErrDependencyMissing)
	}

	reading := Reading{Value: decimal.Zero, Cursor: q.SinceEventID}
	if value != nil {
		reading.Value = decimal.NewFromFloat(*value)
	}
	if lastID != nil {
		reading.Cursor = *lastID
	}
	return reading, nil
}

// QueryEvents returns raw usage event rows matching filter, newest first.
// Unlike QueryUsage it does not aggregate: it backs customers.getUsage's
// filtered history contract, where a caller wants to see individual events
// rather than one rolled-up delta.
func (s *ClickHouseStore) QueryEvents(ctx context.Context, filter EventFilter) ([]EventRow, error) {
	clause := "1 = 1"
	args := make([]any, 0, 5)
	if filter.EventName != "" {
		clause += " AND event_name = ?"
		args = append(args, filter.EventName)
	}
	if filter.ExternalCustomerID != "" {
		clause += " AND external_customer_id = ?"
		args = append(args, filter.ExternalCustomerID)
	}
	if !filter.Start.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		clause += " AND timestamp <= ?"
		args = append(args, filter.End.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = usageEventsDefaultLimit
	}

	sql := fmt.Sprintf(`
		SELECT id, external_customer_id, event_name, timestamp, properties
		FROM usage_events
		PREWHERE %s
		ORDER BY timestamp DESC
		LIMIT ?`, clause)
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, ierr.NewError(err.Error()).
			WithHintf("failed to query usage events for event '%s'", filter.EventName).
			Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	out := make([]EventRow, 0, limit)
	for rows.Next() {
		var row EventRow
		var propertiesJSON string
		if err := rows.Scan(&row.ID, &row.ExternalCustomerID, &row.EventName, &row.Timestamp, &propertiesJSON); err != nil {
			return nil, ierr.NewError(err.Error()).
				WithHint("failed to scan usage event row").
				Mark(ierr.ErrDependencyMissing)
		}
		if propertiesJSON != "" {
			if err := json.Unmarshal([]byte(propertiesJSON), &row.Properties); err != nil {
				return nil, ierr.NewError(err.Error()).
					WithHint("failed to unmarshal usage event properties").
					Mark(ierr.ErrDependencyMissing)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.NewError(err.Error()).
			WithHint("error iterating usage event rows").
			Mark(ierr.ErrDependencyMissing)
	}
	return out, nil
}
