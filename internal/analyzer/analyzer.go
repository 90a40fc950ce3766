// Package analyzer runs the full pipeline: replay in, timing summary out.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"log"

	"hitstat/dotosu"
	"hitstat/internal/input"
	"hitstat/internal/match"
	"hitstat/internal/osr"
	"hitstat/internal/osudb"
	"hitstat/internal/stats"
	"hitstat/internal/timeline"
)

// ErrUnsupportedMode reports a replay for a game mode the matcher does not
// model.
var ErrUnsupportedMode = errors.New("analyzer: unsupported game mode")

// ChartSource resolves a replay's content hash to a chart on disk. The
// index table is the production implementation.
type ChartSource interface {
	Lookup(md5 string) (*osudb.Entry, error)
	ChartPath(e *osudb.Entry) string
}

// Config wires one Analyzer. Cache may be nil to rebuild timelines every
// run. RateOverride forces a playback rate; zero derives it from the
// replay's modifier bits.
type Config struct {
	Source       ChartSource
	Cache        *timeline.Cache
	Calibration  float64
	Epsilon      float64
	RateOverride float64
	Log          *log.Logger
}

// Result is the outcome of analyzing one replay. A replay with no matched
// hits is still a valid Result; the summary just has Count zero.
type Result struct {
	Replay               *osr.Replay
	Entry                *osudb.Entry
	Rate                 float64
	Hits                 []match.Hit
	UnmatchedTransitions int
	UnmatchedEvents      int
	Summary              stats.Summary
}

// Analyzer is safe for concurrent use as long as its ChartSource and cache
// are.
type Analyzer struct {
	cfg  Config
	warn *log.Logger
}

func New(cfg Config) *Analyzer {
	if cfg.Log == nil {
		cfg.Log = log.New(io.Discard, "", 0)
	}
	return &Analyzer{cfg: cfg, warn: cfg.Log}
}

// AnalyzeFile decodes the replay at path and analyzes it.
func (a *Analyzer) AnalyzeFile(path string) (*Result, error) {
	rep, err := osr.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeReplay(rep)
}

// AnalyzeReplay runs an already-decoded replay through lookup, timeline
// build, extraction, matching and summarization.
func (a *Analyzer) AnalyzeReplay(rep *osr.Replay) (*Result, error) {
	if rep.Mode != osr.ModeStandard {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, rep.Mode)
	}
	entry, err := a.cfg.Source.Lookup(rep.BeatmapHash)
	if err != nil {
		return nil, err
	}

	rate := a.cfg.RateOverride
	if rate <= 0 {
		rate = rep.Mods.Rate()
	}

	events, err := a.timelineFor(rep.BeatmapHash, entry, rate)
	if err != nil {
		return nil, err
	}

	frames := input.Frames(rep.Frames, rate, a.warn)
	transitions := input.Transitions(frames)
	res := match.Run(events, transitions, match.Options{Calibration: a.cfg.Calibration})

	offsets := make([]float64, len(res.Hits))
	for i, h := range res.Hits {
		offsets[i] = h.Offset
	}
	return &Result{
		Replay:               rep,
		Entry:                entry,
		Rate:                 rate,
		Hits:                 res.Hits,
		UnmatchedTransitions: res.UnmatchedTransitions,
		UnmatchedEvents:      res.UnmatchedEvents,
		Summary:              stats.Summarize(offsets, a.cfg.Epsilon),
	}, nil
}

func (a *Analyzer) timelineFor(md5 string, entry *osudb.Entry, rate float64) ([]timeline.Event, error) {
	key := timeline.Key(md5, rate)
	if a.cfg.Cache != nil {
		if events, ok := a.cfg.Cache.Get(key); ok {
			return events, nil
		}
	}
	chart, err := dotosu.DecodeFile(a.cfg.Source.ChartPath(entry))
	if err != nil {
		return nil, err
	}
	events := timeline.Build(chart, timeline.Options{Rate: rate})
	if a.cfg.Cache != nil {
		a.cfg.Cache.Add(key, events)
	}
	return events, nil
}
