package input

import (
	"log"
	"strings"
	"testing"

	"hitstat/internal/osr"
)

func TestFramesAccumulation(t *testing.T) {
	raw := []osr.Frame{
		{Delta: 0, X: 10, Y: 20},
		{Delta: 16, X: 11, Y: 21, Keys: osr.KeyK1},
		{Delta: 17, X: 12, Y: 22, Keys: osr.KeyK1},
	}
	frames := Frames(raw, 1.0, nil)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	wantTimes := []float64{0, 16, 33}
	for i, w := range wantTimes {
		if frames[i].Time != w {
			t.Errorf("frame %d: time %v, want %v", i, frames[i].Time, w)
		}
	}
	if frames[1].X != 11 || frames[1].Y != 21 {
		t.Errorf("cursor position not preserved: %+v", frames[1])
	}
}

func TestFramesLeadingNegativeSkipped(t *testing.T) {
	raw := []osr.Frame{
		{Delta: -500},
		{Delta: -1500},
		{Delta: 0},
		{Delta: 20},
	}
	frames := Frames(raw, 1.0, nil)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Time != 0 || frames[1].Time != 20 {
		t.Fatalf("times %v %v, want 0 20", frames[0].Time, frames[1].Time)
	}
}

func TestFramesSyncSentinel(t *testing.T) {
	var sb strings.Builder
	warn := log.New(&sb, "", 0)
	raw := []osr.Frame{
		{Delta: 0},
		{Delta: 100, Keys: osr.KeyK1},
		{Delta: SyncDelta},
		{Delta: 12345, Keys: osr.KeyK2},
		{Delta: 50},
	}
	frames := Frames(raw, 1.0, warn)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4 (sentinel dropped)", len(frames))
	}
	// The frame after the sentinel re-anchors at the current absolute time.
	if frames[2].Time != 100 {
		t.Errorf("post-sentinel frame at %v, want 100", frames[2].Time)
	}
	if frames[3].Time != 150 {
		t.Errorf("accumulation after re-anchor got %v, want 150", frames[3].Time)
	}
	if !strings.Contains(sb.String(), "sync sentinel") {
		t.Errorf("expected a warning, log was %q", sb.String())
	}
}

func TestFramesMidStreamNegativeClamps(t *testing.T) {
	var sb strings.Builder
	warn := log.New(&sb, "", 0)
	raw := []osr.Frame{
		{Delta: 0},
		{Delta: 100},
		{Delta: -30},
		{Delta: 10},
	}
	frames := Frames(raw, 1.0, warn)
	if frames[2].Time != 100 {
		t.Errorf("clamped time %v, want 100", frames[2].Time)
	}
	if frames[3].Time != 110 {
		t.Errorf("time after clamp %v, want 110", frames[3].Time)
	}
	if !strings.Contains(sb.String(), "negative delta") {
		t.Errorf("expected a warning, log was %q", sb.String())
	}
}

func TestFramesRateScaling(t *testing.T) {
	raw := []osr.Frame{
		{Delta: 0},
		{Delta: 150},
	}
	frames := Frames(raw, 1.5, nil)
	if frames[1].Time != 100 {
		t.Fatalf("rate-scaled time %v, want 100", frames[1].Time)
	}
}

func TestFramesSmokeMasked(t *testing.T) {
	raw := []osr.Frame{
		{Delta: 0, Keys: osr.KeySmoke | osr.KeyK1},
	}
	frames := Frames(raw, 1.0, nil)
	if frames[0].Keys != osr.KeyK1 {
		t.Fatalf("keys %v, want smoke masked out", frames[0].Keys)
	}
}

func TestTransitions(t *testing.T) {
	frames := []Frame{
		{Time: 0, Keys: 0},
		{Time: 10, Keys: osr.KeyK1},
		{Time: 20, Keys: osr.KeyK1},
		{Time: 30, Keys: 0},
		{Time: 40, Keys: osr.KeyK1},
	}
	tr := Transitions(frames)
	if len(tr) != 2 {
		t.Fatalf("got %d transitions, want 2", len(tr))
	}
	if tr[0].Time != 10 || tr[1].Time != 40 {
		t.Errorf("transition times %v %v, want 10 40", tr[0].Time, tr[1].Time)
	}
	if tr[0].Key != osr.KeyK1 {
		t.Errorf("transition key %v, want K1", tr[0].Key)
	}
}

func TestTransitionsSimultaneous(t *testing.T) {
	frames := []Frame{
		{Time: 0, Keys: 0},
		{Time: 25, Keys: osr.KeyK1 | osr.KeyK2},
	}
	tr := Transitions(frames)
	if len(tr) != 2 {
		t.Fatalf("got %d transitions, want 2", len(tr))
	}
	if tr[0].Time != 25 || tr[1].Time != 25 {
		t.Errorf("simultaneous gains should share a timestamp: %+v", tr)
	}
	if tr[0].Key == tr[1].Key {
		t.Errorf("each gained bit should produce its own transition: %+v", tr)
	}
}

func TestTransitionsHeldKeyNoRetrigger(t *testing.T) {
	frames := []Frame{
		{Time: 0, Keys: osr.KeyM1},
		{Time: 10, Keys: osr.KeyM1},
	}
	tr := Transitions(frames)
	if len(tr) != 1 {
		t.Fatalf("got %d transitions, want 1 (initial press only)", len(tr))
	}
}
