package proration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

func TestCalculator_Calculate_DayBased(t *testing.T) {
	calc := NewCalculator(logger.NewNop())

	factor, err := calc.Calculate(context.Background(), FactorParams{
		CycleStart:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CycleEnd:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		ProrationDate:    time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		CustomerTimezone: "UTC",
		Strategy:         types.ProrationStrategyDayBased,
	})
	require.NoError(t, err)
	// 31 days total (inclusive), 16 days remaining from the 16th through the 31st.
	assert.True(t, factor.Equal(decimalFrom(16, 31)), "expected 16/31, got %s", factor)
}

func TestCalculator_Calculate_DayBased_FullCycle(t *testing.T) {
	calc := NewCalculator(logger.NewNop())

	factor, err := calc.Calculate(context.Background(), FactorParams{
		CycleStart:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CycleEnd:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		ProrationDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CustomerTimezone: "UTC",
		Strategy:         types.ProrationStrategyDayBased,
	})
	require.NoError(t, err)
	assert.True(t, factor.Equal(decimalFrom(1, 1)))
}

func TestCalculator_Calculate_SecondBased(t *testing.T) {
	calc := NewCalculator(logger.NewNop())

	factor, err := calc.Calculate(context.Background(), FactorParams{
		CycleStart:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CycleEnd:         time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		ProrationDate:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CustomerTimezone: "UTC",
		Strategy:         types.ProrationStrategySecondBased,
	})
	require.NoError(t, err)
	assert.True(t, factor.Equal(decimalFrom(1, 2)))
}

func TestCalculator_Calculate_InvalidCycle(t *testing.T) {
	calc := NewCalculator(logger.NewNop())

	_, err := calc.Calculate(context.Background(), FactorParams{
		CycleStart:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		CycleEnd:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ProrationDate:    time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		CustomerTimezone: "UTC",
		Strategy:         types.ProrationStrategyDayBased,
	})
	assert.Error(t, err)
}

func decimalFrom(numerator, denominator int64) Factor {
	return decimal.NewFromInt(numerator).Div(decimal.NewFromInt(denominator))
}
