// Package stats summarizes a set of hit offsets.
package stats

import "math"

// Tendency buckets the mean offset.
type Tendency int

const (
	OnTime Tendency = iota
	Early
	Late
)

func (t Tendency) String() string {
	switch t {
	case Early:
		return "early"
	case Late:
		return "late"
	default:
		return "on time"
	}
}

// Summary holds the aggregate numbers for one analysis. When Count is zero
// the numeric fields are all zero, never NaN.
type Summary struct {
	Count        int
	MeanOffset   float64
	UnstableRate float64
	Tendency     Tendency
}

// Summarize computes the mean offset, Unstable Rate and tendency of the
// given offsets. Unstable Rate is ten times the population standard
// deviation. epsilon widens the band of mean offsets still reported as on
// time; zero means any nonzero mean leans one way.
func Summarize(offsets []float64, epsilon float64) Summary {
	s := Summary{Count: len(offsets)}
	if len(offsets) == 0 {
		return s
	}
	var sum float64
	for _, o := range offsets {
		sum += o
	}
	mean := sum / float64(len(offsets))

	var sq float64
	for _, o := range offsets {
		d := o - mean
		sq += d * d
	}
	s.MeanOffset = mean
	s.UnstableRate = 10 * math.Sqrt(sq/float64(len(offsets)))
	switch {
	case mean < -epsilon:
		s.Tendency = Early
	case mean > epsilon:
		s.Tendency = Late
	default:
		s.Tendency = OnTime
	}
	return s
}
