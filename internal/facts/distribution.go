// Package facts computes strictly numeric facts from collected GitHub data.
// Nothing here labels or judges a value; interpretation is left to the consumer.
package facts

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// ErrNegativeValue is returned when a distribution contains a negative value.
var ErrNegativeValue = errors.New("distribution values must not be negative")

// DistributionMetrics summarizes a list of non-negative values.
type DistributionMetrics struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	StdDev float64 `json:"stddev"`
	// Gini is the concentration of the values: 0 when all are equal,
	// approaching 1 when a single value holds the whole sum.
	Gini      float64 `json:"gini"`
	Top1Share float64 `json:"top1_share"`
	Top3Share float64 `json:"top3_share"`
}

// CalculateDistributionMetrics computes the metrics of values.
// An empty input yields zero metrics. Percentiles use the nearest rank method.
func CalculateDistributionMetrics(values []float64) (DistributionMetrics, error) {
	if len(values) == 0 {
		return DistributionMetrics{}, nil
	}
	for _, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return DistributionMetrics{}, fmt.Errorf("%w: %v", ErrNegativeValue, v)
		}
	}

	data := stats.Float64Data(values)
	m := DistributionMetrics{Count: len(values)}

	var err error
	if m.Sum, err = stats.Sum(data); err != nil {
		return DistributionMetrics{}, fmt.Errorf("failed to calculate sum: %w", err)
	}
	if m.Mean, err = stats.Mean(data); err != nil {
		return DistributionMetrics{}, fmt.Errorf("failed to calculate mean: %w", err)
	}
	if m.Median, err = stats.Median(data); err != nil {
		return DistributionMetrics{}, fmt.Errorf("failed to calculate median: %w", err)
	}
	for _, p := range []struct {
		percent float64
		dst     *float64
	}{{25, &m.P25}, {75, &m.P75}, {90, &m.P90}} {
		if *p.dst, err = stats.PercentileNearestRank(data, p.percent); err != nil {
			return DistributionMetrics{}, fmt.Errorf("failed to calculate p%v: %w", p.percent, err)
		}
	}
	if m.StdDev, err = stats.StandardDeviationPopulation(data); err != nil {
		return DistributionMetrics{}, fmt.Errorf("failed to calculate standard deviation: %w", err)
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	m.Gini = gini(sorted, m.Sum)
	m.Top1Share = topShare(sorted, m.Sum, 1)
	m.Top3Share = topShare(sorted, m.Sum, 3)
	return m, nil
}

// gini expects ascending values:
// G = 2·Σ(i·x_i) / (n·Σx) − (n+1)/n, with i starting at 1.
func gini(sorted []float64, sum float64) float64 {
	n := float64(len(sorted))
	if n == 0 || sum == 0 {
		return 0
	}
	var weighted float64
	for i, v := range sorted {
		weighted += float64(i+1) * v
	}
	g := 2*weighted/(n*sum) - (n+1)/n
	if g < 0 {
		return 0
	}
	return g
}

// topShare is the fraction of sum held by the k largest values of an ascending slice.
func topShare(sorted []float64, sum float64, k int) float64 {
	if sum == 0 {
		return 0
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	var top float64
	for _, v := range sorted[len(sorted)-k:] {
		top += v
	}
	return top / sum
}
