// Package match aligns key transitions against the hittable timeline.
package match

import (
	"math"
	"sort"

	"hitstat/internal/input"
	"hitstat/internal/osr"
	"hitstat/internal/timeline"
)

// Hit is one transition paired with the event it hit. Offset is
// Actual - Nominal, so negative means early.
type Hit struct {
	Nominal float64
	Actual  float64
	Offset  float64
	Key     osr.Keys
}

// Result carries the matched pairs plus what was left over on either side.
type Result struct {
	Hits                 []Hit
	UnmatchedTransitions int
	UnmatchedEvents      int
}

// Options tunes a matching run. Calibration is subtracted from every
// transition time before comparing against nominal times.
type Options struct {
	Calibration float64
}

// Run pairs each transition with the nearest unconsumed event whose 50
// window contains it. Transitions are processed in time order and every
// event is consumed at most once. When two candidates sit at the same
// distance the earlier nominal time wins.
func Run(events []timeline.Event, transitions []input.Transition, opts Options) Result {
	evs := make([]timeline.Event, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })

	trs := make([]input.Transition, len(transitions))
	copy(trs, transitions)
	sort.SliceStable(trs, func(i, j int) bool { return trs[i].Time < trs[j].Time })

	consumed := make([]bool, len(evs))
	var res Result
	start := 0
	for _, tr := range trs {
		at := tr.Time - opts.Calibration

		// Events that ended before this transition can never match a later
		// one either.
		for start < len(evs) && (consumed[start] || evs[start].Time+evs[start].Window < at) {
			start++
		}

		best := -1
		bestDist := math.Inf(1)
		for i := start; i < len(evs); i++ {
			e := evs[i]
			if e.Time-e.Window > at {
				break
			}
			if consumed[i] {
				continue
			}
			d := math.Abs(at - e.Time)
			if d > e.Window {
				continue
			}
			// Strict < keeps the earliest nominal time on ties.
			if d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			res.UnmatchedTransitions++
			continue
		}
		consumed[best] = true
		res.Hits = append(res.Hits, Hit{
			Nominal: evs[best].Time,
			Actual:  at,
			Offset:  at - evs[best].Time,
			Key:     tr.Key,
		})
	}
	for _, c := range consumed {
		if !c {
			res.UnmatchedEvents++
		}
	}
	return res
}
