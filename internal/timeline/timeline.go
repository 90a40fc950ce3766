// Package timeline converts a decoded chart into the time-ordered sequence
// of hittable events the matcher consumes. Only circles and slider heads are
// hittable; spinner and hold kinds never enter the timeline.
package timeline

import (
	"math"

	"hitstat/dotosu"
	"hitstat/internal/curve"
)

// Windows are the acceptance half-widths in milliseconds for each judgement
// tier at a given Overall Difficulty.
type Windows struct {
	W300 float64
	W100 float64
	W50  float64
}

// Genre-defined anchor windows at OD 0, 5 and 10. Between anchors the window
// is linearly interpolated; outside [0,10] it clamps to the nearest anchor.
var (
	anchors300 = [3]float64{79.5, 49.5, 19.5}
	anchors100 = [3]float64{139.5, 109.5, 79.5}
	anchors50  = [3]float64{199.5, 149.5, 99.5}
)

// WindowsFor computes the acceptance windows for an Overall Difficulty.
// Rate modifiers never touch these; they scale event times instead.
func WindowsFor(od float64) Windows {
	return Windows{
		W300: interpolate(anchors300, od),
		W100: interpolate(anchors100, od),
		W50:  interpolate(anchors50, od),
	}
}

func interpolate(a [3]float64, od float64) float64 {
	switch {
	case od <= 0:
		return a[0]
	case od >= 10:
		return a[2]
	case od < 5:
		return a[0] + (a[1]-a[0])*od/5
	default:
		return a[1] + (a[2]-a[1])*(od-5)/5
	}
}

// Event is one hittable object on the timeline. Times are rate-scaled
// milliseconds. Window is the matching half-width, the hit-50 window.
// Events are immutable; the matcher tracks consumption separately.
type Event struct {
	Time    float64
	EndTime float64
	Window  float64
	Kind    dotosu.ObjectKind
}

// Options configure a build.
type Options struct {
	// Rate is the playback rate multiplier; all object times are divided by
	// it. Zero means 1.0.
	Rate float64
	// Tolerance bounds bezier flattening when a slider has no stored pixel
	// length and geometry must supply one. Zero means curve.DefaultTolerance.
	Tolerance float64
}

// fallbackBeatLength covers charts whose first object precedes any
// uninherited timing point.
const fallbackBeatLength = 500.0

// Build produces the hittable timeline for a chart. The walk over timing
// points mirrors gameplay: the last uninherited point fixes the beat length,
// the last inherited point after it scales slider velocity.
func Build(chart *dotosu.Chart, opts Options) []Event {
	rate := opts.Rate
	if rate <= 0 {
		rate = 1.0
	}
	w := WindowsFor(chart.Difficulty.OverallDifficulty)

	events := make([]Event, 0, len(chart.HitObjects))
	tps := chart.TimingPoints
	tpIdx := 0
	beatLength := fallbackBeatLength
	velocity := 1.0
	sawRed := false

	for _, obj := range chart.HitObjects {
		for tpIdx < len(tps) && (!sawRed || tps[tpIdx].Time <= obj.Time) {
			tp := tps[tpIdx]
			tpIdx++
			if tp.Uninherited {
				if tp.BeatLength > 0 {
					beatLength = tp.BeatLength
				}
				velocity = 1.0
				sawRed = true
			} else {
				velocity = math.Max(0.1, tp.VelocityMultiple)
			}
		}

		switch obj.Kind {
		case dotosu.KindCircle:
			events = append(events, Event{
				Time:    float64(obj.Time) / rate,
				EndTime: float64(obj.Time) / rate,
				Window:  w.W50,
				Kind:    obj.Kind,
			})
		case dotosu.KindSlider:
			pixelLen := obj.Length
			if pixelLen <= 0 {
				pixelLen = curve.Resolve(obj.Path, opts.Tolerance).Length
			}
			slides := obj.Slides
			if slides < 1 {
				slides = 1
			}
			spanDuration := pixelLen / (chart.Difficulty.SliderMultiplier * 100 * velocity) * beatLength
			end := float64(obj.Time) + spanDuration*float64(slides)
			events = append(events, Event{
				Time:    float64(obj.Time) / rate,
				EndTime: end / rate,
				Window:  w.W50,
				Kind:    obj.Kind,
			})
		case dotosu.KindSpinner, dotosu.KindHold:
			// Not hittable by a timed press; excluded from matching.
		}
	}
	return events
}
