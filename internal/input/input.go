// Package input reconstructs the absolute-time input stream from raw replay
// frames and detects the key-down transitions the matcher aligns against.
package input

import (
	"io"
	"log"
	"math/bits"

	"hitstat/internal/osr"
)

// SyncDelta is the sentinel time delta the client writes for its RNG-seed
// frame. It marks a discontinuity, never a real sample.
const SyncDelta = -12345

// RelevantKeys masks the bits that count as a hit attempt; smoke is
// cosmetic.
const RelevantKeys = osr.KeyM1 | osr.KeyM2 | osr.KeyK1 | osr.KeyK2

// Frame is one input sample on the absolute timeline. Times are rate-scaled
// milliseconds. Cursor position is preserved for future consumers; matching
// ignores it.
type Frame struct {
	Time float64
	X    float64
	Y    float64
	Keys osr.Keys
}

// Transition records one key bit flipping 0->1. Simultaneous gains in a
// single frame yield one Transition per bit, all at the same time.
type Transition struct {
	Time float64
	Key  osr.Keys
}

// The accumulator is a two-state machine: accumulating applies deltas
// normally; resynced re-anchors on the next frame without applying its
// delta, because the sentinel reset the relative base.
type accumState int

const (
	stateAccumulating accumState = iota
	stateResynced
)

// Frames accumulates frame deltas into absolute times. rate divides all
// times (zero means 1.0). Sentinel deltas drop the frame, log a warning and
// reset relative accumulation without touching absolute time. Output times
// are monotonically non-decreasing; a mid-stream negative delta clamps to
// the previous time and warns.
func Frames(raw []osr.Frame, rate float64, warn *log.Logger) []Frame {
	if rate <= 0 {
		rate = 1.0
	}
	if warn == nil {
		warn = log.New(io.Discard, "", 0)
	}
	out := make([]Frame, 0, len(raw))
	var abs int64
	started := false
	state := stateAccumulating

	for i, f := range raw {
		if f.Delta == SyncDelta {
			warn.Printf("replay frame %d: sync sentinel delta, resetting relative accumulation", i)
			state = stateResynced
			continue
		}
		switch state {
		case stateResynced:
			// Re-anchor: the delta is relative to a base the sentinel
			// discarded.
			state = stateAccumulating
		case stateAccumulating:
			if !started && f.Delta < 0 {
				// Leading negative deltas are junk frames before the track
				// starts.
				continue
			}
			if f.Delta < 0 && started {
				warn.Printf("replay frame %d: negative delta %d, clamping to previous time", i, f.Delta)
			} else {
				abs += f.Delta
			}
		}
		started = true
		out = append(out, Frame{
			Time: float64(abs) / rate,
			X:    f.X,
			Y:    f.Y,
			Keys: f.Keys & RelevantKeys,
		})
	}
	return out
}

// Transitions detects key-down edges between consecutive frames.
func Transitions(frames []Frame) []Transition {
	var out []Transition
	var prev osr.Keys
	for _, f := range frames {
		gained := f.Keys &^ prev
		for gained != 0 {
			bit := osr.Keys(1) << uint(bits.TrailingZeros32(uint32(gained)))
			out = append(out, Transition{Time: f.Time, Key: bit})
			gained &^= bit
		}
		prev = f.Keys
	}
	return out
}
