// Package osr decodes the .osr replay container: header fields, the mod
// bitset, and the LZMA-compressed input frame block.
package osr

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz/lzma"

	"hitstat/internal/decode"
)

const formatName = "osr"

// GameMode identifies the ruleset a replay was recorded in.
type GameMode byte

const (
	ModeStandard GameMode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

func (m GameMode) String() string {
	switch m {
	case ModeStandard:
		return "osu!"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "catch"
	case ModeMania:
		return "mania"
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// Mods is the modifier bitset stored in the replay header.
type Mods int32

const (
	ModNoFail Mods = 1 << iota
	ModEasy
	ModTouchDevice
	ModHidden
	ModHardRock
	ModSuddenDeath
	ModDoubleTime
	ModRelax
	ModHalfTime
	ModNightcore
	ModFlashlight
	ModAutoplay
	ModSpunOut
	ModAutopilot
	ModPerfect
	ModKey4
	ModKey5
	ModKey6
	ModKey7
	ModKey8
	ModFadeIn
	ModRandom
	ModCinema
	ModTargetPractice
)

// Has reports whether all bits of m2 are set.
func (m Mods) Has(m2 Mods) bool { return m&m2 == m2 }

// Rate returns the playback rate multiplier the mods impose.
func (m Mods) Rate() float64 {
	switch {
	case m.Has(ModDoubleTime) || m.Has(ModNightcore):
		return 1.5
	case m.Has(ModHalfTime):
		return 0.75
	}
	return 1.0
}

// Keys is the per-frame input bitmask. M1/M2 are mouse buttons, K1/K2 the
// keyboard keys (the client sets the mouse bit alongside each key bit).
type Keys uint32

const (
	KeyM1 Keys = 1 << iota
	KeyM2
	KeyK1
	KeyK2
	KeySmoke
)

// Frame is one raw replay sample. Delta is milliseconds relative to the
// previous frame, not an absolute time; accumulation is the extractor's job.
type Frame struct {
	Delta int64
	X     float64
	Y     float64
	Keys  Keys
}

// Replay is a fully-decoded .osr file. Immutable once returned.
type Replay struct {
	Mode          GameMode
	Version       int32
	BeatmapHash   string
	Player        string
	ReplayHash    string
	Count300      uint16
	Count100      uint16
	Count50       uint16
	CountGeki     uint16
	CountKatu     uint16
	CountMiss     uint16
	Score         int32
	MaxCombo      uint16
	Perfect       bool
	Mods          Mods
	LifeBar       string
	Timestamp     time.Time
	Frames        []Frame
	OnlineScoreID int64
	TargetAcc     float64
}

// scoreIDVersion is the first client version writing the int64 online score
// id trailer; earlier clients wrote an int32.
const scoreIDVersion = 20140721

// DecodeFile reads and decodes a replay from disk.
func DecodeFile(path string) (*Replay, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Decode parses a complete .osr buffer. On any failure it returns a
// *decode.Error and no replay.
func Decode(buf []byte) (*Replay, error) {
	r := decode.NewReader(formatName, buf)
	rep := &Replay{}

	mode, err := r.Byte("gameMode")
	if err != nil {
		return nil, err
	}
	rep.Mode = GameMode(mode)
	if rep.Mode > ModeMania {
		return nil, decode.NewError(formatName, 0, "gameMode",
			decode.ErrBadValue, "mode 0-3", strconv.Itoa(int(mode)))
	}
	if rep.Version, err = r.Int32("version"); err != nil {
		return nil, err
	}
	if rep.BeatmapHash, err = r.String("beatmapHash"); err != nil {
		return nil, err
	}
	if rep.Player, err = r.String("playerName"); err != nil {
		return nil, err
	}
	if rep.ReplayHash, err = r.String("replayHash"); err != nil {
		return nil, err
	}
	counts := []struct {
		field string
		dst   *uint16
	}{
		{"count300", &rep.Count300},
		{"count100", &rep.Count100},
		{"count50", &rep.Count50},
		{"countGeki", &rep.CountGeki},
		{"countKatu", &rep.CountKatu},
		{"countMiss", &rep.CountMiss},
	}
	for _, c := range counts {
		if *c.dst, err = r.Uint16(c.field); err != nil {
			return nil, err
		}
	}
	if rep.Score, err = r.Int32("score"); err != nil {
		return nil, err
	}
	if rep.MaxCombo, err = r.Uint16("maxCombo"); err != nil {
		return nil, err
	}
	if rep.Perfect, err = r.Bool("perfect"); err != nil {
		return nil, err
	}
	mods, err := r.Int32("mods")
	if err != nil {
		return nil, err
	}
	rep.Mods = Mods(mods)
	if rep.LifeBar, err = r.String("lifeBar"); err != nil {
		return nil, err
	}
	ticks, err := r.Int64("timestamp")
	if err != nil {
		return nil, err
	}
	rep.Timestamp = timeFromTicks(ticks)

	frameLen, err := r.Int32("frameBlockLength")
	if err != nil {
		return nil, err
	}
	if frameLen < 0 {
		return nil, decode.NewError(formatName, r.Offset()-4, "frameBlockLength",
			decode.ErrBadValue, "non-negative length", strconv.Itoa(int(frameLen)))
	}
	blockStart := r.Offset()
	block, err := r.Bytes("frameBlock", int(frameLen))
	if err != nil {
		return nil, err
	}
	if rep.Frames, err = decodeFrameBlock(block, blockStart); err != nil {
		return nil, err
	}

	// The online score id is a mandatory trailer; its absence is a missing
	// field, not mere truncation.
	if rep.Version >= scoreIDVersion {
		if rep.OnlineScoreID, err = r.Int64("onlineScoreID"); err != nil {
			return nil, decode.NewError(formatName, r.Offset(), "onlineScoreID",
				decode.ErrMissingField, "int64 trailer", fmt.Sprintf("%d bytes", r.Remaining()))
		}
	} else if r.Remaining() >= 4 {
		id, err := r.Int32("onlineScoreID")
		if err != nil {
			return nil, err
		}
		rep.OnlineScoreID = int64(id)
	}
	if rep.Mods.Has(ModTargetPractice) {
		if rep.TargetAcc, err = r.Float64("targetPracticeAcc"); err != nil {
			return nil, decode.NewError(formatName, r.Offset(), "targetPracticeAcc",
				decode.ErrMissingField, "float64 trailer", fmt.Sprintf("%d bytes", r.Remaining()))
		}
	}
	// Extra trailing bytes from future client versions are ignored.
	return rep, nil
}

// decodeFrameBlock decompresses the LZMA stream and parses the
// "delta|x|y|keys," records inside it. blockOffset locates the block in the
// container for error reporting.
func decodeFrameBlock(block []byte, blockOffset int) ([]Frame, error) {
	if len(block) == 0 {
		return nil, nil
	}
	zr, err := lzma.NewReader(bytes.NewReader(block))
	if err != nil {
		return nil, decode.NewError(formatName, blockOffset, "frameBlock",
			decode.ErrBadValue, "LZMA stream header", err.Error())
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, decode.NewError(formatName, blockOffset, "frameBlock",
			decode.ErrTruncated, "complete LZMA stream", err.Error())
	}
	return parseFrames(string(raw), blockOffset)
}

func parseFrames(raw string, blockOffset int) ([]Frame, error) {
	records := strings.Split(raw, ",")
	frames := make([]Frame, 0, len(records))
	for i, rec := range records {
		if rec == "" {
			continue // trailing separator
		}
		parts := strings.Split(rec, "|")
		if len(parts) != 4 {
			return nil, frameErr(blockOffset, i, "delta|x|y|keys", rec)
		}
		var f Frame
		var err error
		if f.Delta, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return nil, frameErr(blockOffset, i, "integer delta", parts[0])
		}
		if f.X, err = strconv.ParseFloat(parts[1], 64); err != nil {
			return nil, frameErr(blockOffset, i, "float x", parts[1])
		}
		if f.Y, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return nil, frameErr(blockOffset, i, "float y", parts[2])
		}
		keys, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return nil, frameErr(blockOffset, i, "integer keys", parts[3])
		}
		f.Keys = Keys(keys)
		frames = append(frames, f)
	}
	return frames, nil
}

func frameErr(blockOffset, i int, expected, found string) error {
	return decode.NewError(formatName, blockOffset, fmt.Sprintf("frame[%d]", i),
		decode.ErrBadValue, expected, strconv.Quote(found))
}

// .NET ticks are 100ns intervals since 0001-01-01T00:00:00 UTC.
const unixEpochTicks = 621355968000000000

func timeFromTicks(ticks int64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	rel := ticks - unixEpochTicks
	return time.Unix(rel/1e7, (rel%1e7)*100).UTC()
}
