package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationStdDev returns the standard deviation of values using the
// population variance (divisor len(values), not len(values)-1).
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// FormatDeviation renders d with exactly two decimal places.
func FormatDeviation(d float64) string {
	return decimal.NewFromFloat(d).StringFixed(2)
}
