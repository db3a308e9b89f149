package types

// AggregationType determines how raw usage events roll up into an
// entitlement's cycle usage. The "_all" variants ignore cycle reset and
// report against accumulated usage instead of the current cycle.
type AggregationType string

const (
	AggregationSum              AggregationType = "sum"
	AggregationMax              AggregationType = "max"
	AggregationCount            AggregationType = "count"
	AggregationLastDuringPeriod AggregationType = "last_during_period"
	AggregationSumAll           AggregationType = "sum_all"
	AggregationMaxAll           AggregationType = "max_all"
	AggregationCountAll         AggregationType = "count_all"
)

func (t AggregationType) Validate() bool {
	switch t {
	case AggregationSum, AggregationMax, AggregationCount, AggregationLastDuringPeriod,
		AggregationSumAll, AggregationMaxAll, AggregationCountAll:
		return true
	default:
		return false
	}
}

// IgnoresCycleReset reports whether this aggregation reads accumulatedUsage
// instead of the current cycle's usage window.
func (t AggregationType) IgnoresCycleReset() bool {
	switch t {
	case AggregationSumAll, AggregationMaxAll, AggregationCountAll:
		return true
	default:
		return false
	}
}

// RequiresField returns true if the aggregation type requires a value field
// on the usage event (counts need only the event itself).
func (t AggregationType) RequiresField() bool {
	switch t {
	case AggregationCount, AggregationCountAll:
		return false
	default:
		return true
	}
}
