// Package dotosu decodes .osu chart definition files into the reduced model
// the offset analysis needs: difficulty settings, timing points and hit
// objects with their slider path geometry.
package dotosu

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"hitstat/internal/decode"
)

const formatName = ".osu"

// Charts older than format v5 store times shifted by a fixed amount.
const earlyVersionTimingOffset = 24

type section int

const (
	secNone section = iota
	secGeneral
	secMetadata
	secDifficulty
	secTimingPoints
	secHitObjects
)

// ObjectKind tags a hit object variant. Matching and timeline construction
// switch on it exhaustively.
type ObjectKind uint8

const (
	KindCircle ObjectKind = iota
	KindSlider
	KindSpinner
	KindHold
)

func (k ObjectKind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindSlider:
		return "slider"
	case KindSpinner:
		return "spinner"
	case KindHold:
		return "hold"
	}
	return "unknown"
}

// Type flag bits of the hit object line.
const (
	typeCircle  = 1 << 0
	typeSlider  = 1 << 1
	typeSpinner = 1 << 3
	typeHold    = 1 << 7
)

// PathType tags the slider curve flavor.
type PathType uint8

const (
	PathBezier PathType = iota
	PathLinear
	PathCatmull
	PathPerfect
)

// Vec2 is a playfield position in osu!pixels.
type Vec2 struct{ X, Y float64 }

// PathSegment is one run of control points. The first segment starts at the
// slider head; bezier paths split into segments at repeated points (red
// anchors).
type PathSegment struct {
	Points []Vec2
}

// Path is a fully parsed slider path.
type Path struct {
	Type     PathType
	Segments []PathSegment
}

// HitObject is a tagged variant. Time is milliseconds from track start.
// Slider-only fields are zero for other kinds; EndTime is populated by the
// decoder for spinners and holds only (slider end times need timing point
// context and belong to the timeline builder).
type HitObject struct {
	Kind    ObjectKind
	Pos     Vec2
	Time    int
	EndTime int

	Path   Path
	Slides int
	Length float64
}

// TimingPoint carries the subset of timing line fields that matter for
// slider duration: uninherited points fix the beat length, inherited points
// scale slider velocity.
type TimingPoint struct {
	Time             int
	BeatLength       float64
	Uninherited      bool
	VelocityMultiple float64
}

type General struct {
	Mode          int
	AudioFilename string
	StackLeniency float64
}

type Metadata struct {
	Title   string
	Artist  string
	Creator string
	Version string
}

type Difficulty struct {
	HPDrainRate       float64
	CircleSize        float64
	OverallDifficulty float64
	ApproachRate      float64
	SliderMultiplier  float64
	SliderTickRate    float64
}

// Chart is a decoded .osu file. HitObjects are ordered by non-decreasing
// start time; the decoder enforces this with a stable sort.
type Chart struct {
	FormatVersion int
	General       General
	Metadata      Metadata
	Difficulty    Difficulty
	TimingPoints  []TimingPoint
	HitObjects    []HitObject
}

// DecodeFile reads and decodes a chart from disk.
func DecodeFile(path string) (*Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a chart. Structural failures (bad header, short hit object
// lines) return a *decode.Error whose offset is the 1-based line number;
// malformed scalar values fall back to defaults the way the client does.
func Decode(r io.Reader) (*Chart, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	var header string
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		// Skip a UTF-8 BOM on the first content line.
		line = strings.TrimPrefix(line, "\ufeff")
		if line == "" {
			continue
		}
		header = line
		break
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	const headerPrefix = "osu file format v"
	if !strings.HasPrefix(strings.ToLower(header), headerPrefix) {
		return nil, decode.NewError(formatName, lineNo, "header",
			decode.ErrBadValue, headerPrefix+"N", strconv.Quote(header))
	}
	version, err := strconv.Atoi(strings.TrimSpace(header[len(headerPrefix):]))
	if err != nil {
		return nil, decode.NewError(formatName, lineNo, "formatVersion",
			decode.ErrBadValue, "integer version", strconv.Quote(header))
	}

	c := &Chart{
		FormatVersion: version,
		Difficulty: Difficulty{
			SliderMultiplier: 1.4,
			SliderTickRate:   1,
			ApproachRate:     -1,
		},
	}
	offset := 0
	if version < 5 {
		offset = earlyVersionTimingOffset
	}

	sec := secNone
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			switch strings.ToLower(line) {
			case "[general]":
				sec = secGeneral
			case "[metadata]":
				sec = secMetadata
			case "[difficulty]":
				sec = secDifficulty
			case "[timingpoints]":
				sec = secTimingPoints
			case "[hitobjects]":
				sec = secHitObjects
			default:
				sec = secNone
			}
			continue
		}

		switch sec {
		case secGeneral:
			k, v := splitKeyVal(line)
			switch strings.ToLower(k) {
			case "mode":
				c.General.Mode = parseInt(v, 0)
			case "audiofilename":
				c.General.AudioFilename = strings.Trim(v, "\"")
			case "stackleniency":
				c.General.StackLeniency = parseFloat(v, 0)
			}

		case secMetadata:
			k, v := splitKeyVal(line)
			switch strings.ToLower(k) {
			case "title":
				c.Metadata.Title = v
			case "artist":
				c.Metadata.Artist = v
			case "creator":
				c.Metadata.Creator = v
			case "version":
				c.Metadata.Version = v
			}

		case secDifficulty:
			k, v := splitKeyVal(line)
			switch strings.ToLower(k) {
			case "hpdrainrate":
				c.Difficulty.HPDrainRate = parseFloat(v, 5)
			case "circlesize":
				c.Difficulty.CircleSize = parseFloat(v, 5)
			case "overalldifficulty":
				c.Difficulty.OverallDifficulty = parseFloat(v, 5)
			case "approachrate":
				c.Difficulty.ApproachRate = parseFloat(v, -1)
			case "slidermultiplier":
				c.Difficulty.SliderMultiplier = parseFloat(v, 1.4)
			case "slidertickrate":
				c.Difficulty.SliderTickRate = parseFloat(v, 1)
			}

		case secTimingPoints:
			parts := strings.Split(line, ",")
			if len(parts) < 2 {
				continue
			}
			tp := TimingPoint{
				Time:             parseInt(strings.TrimSpace(parts[0]), 0) + offset,
				BeatLength:       parseFloat(parts[1], 0),
				Uninherited:      true,
				VelocityMultiple: 1,
			}
			if len(parts) >= 7 {
				tp.Uninherited = strings.TrimSpace(parts[6]) == "1"
			}
			if tp.BeatLength < 0 {
				// Inherited point: the negative value is -100/velocity.
				tp.Uninherited = false
				tp.VelocityMultiple = 100.0 / -tp.BeatLength
			}
			c.TimingPoints = append(c.TimingPoints, tp)

		case secHitObjects:
			obj, err := parseHitObject(line, lineNo, offset)
			if err != nil {
				return nil, err
			}
			c.HitObjects = append(c.HitObjects, obj)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if c.Difficulty.ApproachRate < 0 {
		c.Difficulty.ApproachRate = c.Difficulty.OverallDifficulty
	}
	sort.SliceStable(c.TimingPoints, func(i, j int) bool {
		return c.TimingPoints[i].Time < c.TimingPoints[j].Time
	})
	sort.SliceStable(c.HitObjects, func(i, j int) bool {
		return c.HitObjects[i].Time < c.HitObjects[j].Time
	})
	return c, nil
}

func parseHitObject(line string, lineNo, offset int) (HitObject, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return HitObject{}, decode.NewError(formatName, lineNo, "hitObject",
			decode.ErrBadValue, ">= 5 comma fields", strconv.Quote(line))
	}
	pos := Vec2{
		X: parseFloat(parts[0], 0),
		Y: parseFloat(parts[1], 0),
	}
	t := parseInt(strings.TrimSpace(parts[2]), 0) + offset
	flags := parseInt(strings.TrimSpace(parts[3]), 0)

	obj := HitObject{Pos: pos, Time: t}
	switch {
	case flags&typeHold != 0:
		obj.Kind = KindHold
		if len(parts) >= 6 {
			// endTime:sampleSpec
			end, _, _ := strings.Cut(parts[5], ":")
			obj.EndTime = parseInt(end, t) + offset
		}
	case flags&typeSpinner != 0:
		obj.Kind = KindSpinner
		if len(parts) >= 6 {
			obj.EndTime = parseInt(strings.TrimSpace(parts[5]), t) + offset
		}
	case flags&typeSlider != 0:
		obj.Kind = KindSlider
		var spec string
		if len(parts) >= 6 {
			spec = parts[5]
		}
		obj.Path = parsePath(pos, spec)
		obj.Slides = 1
		if len(parts) >= 7 {
			obj.Slides = parseInt(strings.TrimSpace(parts[6]), 1)
		}
		if len(parts) >= 8 {
			obj.Length = parseFloat(parts[7], 0)
		}
	default:
		obj.Kind = KindCircle
	}
	return obj, nil
}

// parsePath converts "B|x:y|x:y|..." into typed segments. The slider head is
// always the first point of the first segment.
func parsePath(head Vec2, spec string) Path {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Path{Type: PathBezier, Segments: []PathSegment{{Points: []Vec2{head}}}}
	}

	typeStr, rest, _ := strings.Cut(spec, "|")
	var pt PathType
	switch strings.ToUpper(strings.TrimSpace(typeStr)) {
	case "L":
		pt = PathLinear
	case "C":
		pt = PathCatmull
	case "P":
		pt = PathPerfect
	default:
		pt = PathBezier
	}

	var cps []Vec2
	if strings.TrimSpace(rest) != "" {
		for _, tok := range strings.Split(rest, "|") {
			x, y, ok := strings.Cut(strings.TrimSpace(tok), ":")
			if !ok {
				continue
			}
			cps = append(cps, Vec2{
				X: parseFloat(x, head.X),
				Y: parseFloat(y, head.Y),
			})
		}
	}

	switch pt {
	case PathPerfect:
		// A perfect arc needs exactly head + 2 points; otherwise the client
		// falls back to bezier.
		if len(cps) != 2 {
			return bezierSegments(head, cps)
		}
		return Path{Type: PathPerfect, Segments: []PathSegment{{Points: append([]Vec2{head}, cps...)}}}
	case PathLinear:
		return Path{Type: PathLinear, Segments: []PathSegment{{Points: append([]Vec2{head}, cps...)}}}
	case PathCatmull:
		return Path{Type: PathCatmull, Segments: []PathSegment{{Points: append([]Vec2{head}, cps...)}}}
	default:
		return bezierSegments(head, cps)
	}
}

// bezierSegments splits a control point run at repeated points.
func bezierSegments(head Vec2, cps []Vec2) Path {
	pts := append([]Vec2{head}, cps...)
	var segs []PathSegment
	cur := []Vec2{pts[0]}
	for _, p := range pts[1:] {
		prev := cur[len(cur)-1]
		if p == prev {
			if len(cur) >= 2 {
				segs = append(segs, PathSegment{Points: cur})
			}
			cur = []Vec2{p}
			continue
		}
		cur = append(cur, p)
	}
	if len(cur) >= 2 {
		segs = append(segs, PathSegment{Points: cur})
	}
	if len(segs) == 0 {
		segs = []PathSegment{{Points: []Vec2{head, head}}}
	}
	return Path{Type: PathBezier, Segments: segs}
}

func splitKeyVal(line string) (key, val string) {
	k, v, ok := strings.Cut(line, ":")
	if !ok {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(k), strings.TrimSpace(v)
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	// Some old charts store integer fields with a decimal tail.
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
