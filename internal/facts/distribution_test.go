package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDistributionMetrics(t *testing.T) {
	testCases := []struct {
		name     string
		values   []float64
		expected DistributionMetrics
	}{
		{
			name:   "increasing values",
			values: []float64{3, 1, 4, 2},
			expected: DistributionMetrics{
				Count: 4, Sum: 10, Mean: 2.5, Median: 2.5,
				P25: 1, P75: 3, P90: 4, StdDev: 1.118034,
				Gini: 0.25, Top1Share: 0.4, Top3Share: 0.9,
			},
		},
		{
			name:   "equal values have no concentration",
			values: []float64{5, 5, 5},
			expected: DistributionMetrics{
				Count: 3, Sum: 15, Mean: 5, Median: 5,
				P25: 5, P75: 5, P90: 5, StdDev: 0,
				Gini: 0, Top1Share: 1.0 / 3, Top3Share: 1,
			},
		},
		{
			name:   "a single contributor holds everything",
			values: []float64{0, 0, 0, 10},
			expected: DistributionMetrics{
				Count: 4, Sum: 10, Mean: 2.5, Median: 0,
				P25: 0, P75: 0, P90: 10, StdDev: 4.330127,
				Gini: 0.75, Top1Share: 1, Top3Share: 1,
			},
		},
		{
			name:   "single value",
			values: []float64{7},
			expected: DistributionMetrics{
				Count: 1, Sum: 7, Mean: 7, Median: 7,
				P25: 7, P75: 7, P90: 7, StdDev: 0,
				Gini: 0, Top1Share: 1, Top3Share: 1,
			},
		},
		{
			name:     "all zero",
			values:   []float64{0, 0},
			expected: DistributionMetrics{Count: 2},
		},
		{
			name:     "empty input",
			values:   nil,
			expected: DistributionMetrics{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateDistributionMetrics(tc.values)

			require.NoError(t, err)
			assert.Equal(t, tc.expected.Count, got.Count)
			const delta = 1e-6
			assert.InDelta(t, tc.expected.Sum, got.Sum, delta, "sum")
			assert.InDelta(t, tc.expected.Mean, got.Mean, delta, "mean")
			assert.InDelta(t, tc.expected.Median, got.Median, delta, "median")
			assert.InDelta(t, tc.expected.P25, got.P25, delta, "p25")
			assert.InDelta(t, tc.expected.P75, got.P75, delta, "p75")
			assert.InDelta(t, tc.expected.P90, got.P90, delta, "p90")
			assert.InDelta(t, tc.expected.StdDev, got.StdDev, delta, "stddev")
			assert.InDelta(t, tc.expected.Gini, got.Gini, delta, "gini")
			assert.InDelta(t, tc.expected.Top1Share, got.Top1Share, delta, "top1")
			assert.InDelta(t, tc.expected.Top3Share, got.Top3Share, delta, "top3")
		})
	}
}

func TestCalculateDistributionMetricsRejectsNegativeValues(t *testing.T) {
	_, err := CalculateDistributionMetrics([]float64{1, -2})

	assert.ErrorIs(t, err, ErrNegativeValue)
}

func TestCalculateDistributionMetricsDoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}

	_, err := CalculateDistributionMetrics(values)

	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}
