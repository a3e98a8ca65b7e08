// Package indicator computes the volatility bands the scanner trades on.
package indicator

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BandPeriod is the number of trailing closes a band is computed over.
	BandPeriod = 20
	// BandWidth is the number of standard deviations between the mean and a band.
	BandWidth = 2.0
	// bandPrecision is the number of decimal places the lower band is rounded to.
	bandPrecision = 8
)

// ErrInsufficientData is returned when fewer than BandPeriod closes are supplied.
var ErrInsufficientData = errors.New("insufficient data for bollinger bands")

// BandResult holds one Bollinger band computation.
type BandResult struct {
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	LowerBand float64 `json:"lower_band"`
	UpperBand float64 `json:"upper_band"`
}

// ComputeBollinger computes the bands over the last BandPeriod closes, oldest first.
// The standard deviation is the population deviation. Only the lower band is rounded.
func ComputeBollinger(closes []float64) (BandResult, error) {
	if len(closes) < BandPeriod {
		return BandResult{}, fmt.Errorf("%w: need %d closes, got %d", ErrInsufficientData, BandPeriod, len(closes))
	}
	window := closes[len(closes)-BandPeriod:]

	sum := 0.0
	for _, c := range window {
		sum += c
	}
	mean := sum / BandPeriod

	variance := 0.0
	for _, c := range window {
		d := c - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / BandPeriod)

	return BandResult{
		Mean:      mean,
		StdDev:    stdDev,
		LowerBand: RoundTo(mean-BandWidth*stdDev, bandPrecision),
		UpperBand: mean + BandWidth*stdDev,
	}, nil
}

// RoundTo rounds x half away from zero to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// PercentChange returns (to-from)/from as a percentage rounded to 2 decimal places.
func PercentChange(from, to float64) float64 {
	return RoundTo((to-from)/from*100, 2)
}
