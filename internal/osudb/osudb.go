// Package osudb decodes the osu!.db chart index. The file is commonly
// hundreds of megabytes, so entries are surfaced through a streaming Scanner
// rather than a materialized slice; restarting means building a new Scanner
// over the same buffer.
package osudb

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"hitstat/internal/decode"
)

const formatName = "osu!.db"

// Layout-changing client versions.
const (
	verFloatDifficulty = 20140609 // difficulty values become floats, star rating pairs appear
	verNoEntrySize     = 20191106 // per-entry byte size prefix removed
	verFloatStarRating = 20250107 // star rating pairs switch from double to float payloads
)

// Header is the fixed preamble before the beatmap entries.
type Header struct {
	Version         int32
	FolderCount     int32
	AccountUnlocked bool
	UnlockTime      time.Time
	PlayerName      string
	BeatmapCount    int32
}

// TimingPoint is the reduced timing point representation the index stores.
type TimingPoint struct {
	BPM         float64
	Offset      float64
	Uninherited bool
}

// Entry is one beatmap record from the index. MD5 is the content hash the
// replay header refers to; FolderName and OsuFile locate the chart on disk.
type Entry struct {
	Artist        string
	ArtistUnicode string
	Title         string
	TitleUnicode  string
	Creator       string
	Difficulty    string
	AudioFile     string
	MD5           string
	OsuFile       string

	RankedStatus byte
	CircleCount  uint16
	SliderCount  uint16
	SpinnerCount uint16
	LastModified time.Time

	ApproachRate      float64
	CircleSize        float64
	HPDrainRate       float64
	OverallDifficulty float64
	SliderVelocity    float64
	StarRating        float64 // NoMod osu! standard rating, 0 if absent

	DrainTime   int32
	TotalTime   int32
	PreviewTime int32

	TimingPoints []TimingPoint

	DifficultyID int32
	BeatmapID    int32
	ThreadID     int32
	Grades       [4]byte

	LocalOffset   int16
	StackLeniency float32
	Mode          byte
	Source        string
	Tags          string
	OnlineOffset  int16
	TitleFont     string
	Unplayed      bool
	LastPlayed    time.Time
	IsOsz2        bool
	FolderName    string
	LastChecked   time.Time

	IgnoreSound       bool
	IgnoreSkin        bool
	DisableStoryboard bool
	DisableVideo      bool
	VisualOverride    bool
	ManiaScrollSpeed  byte
}

// Scanner decodes the header eagerly and entries lazily, one Next call at a
// time. Once Next returns io.EOF the user-permissions trailer has been
// consumed and Permissions is valid.
type Scanner struct {
	r           *decode.Reader
	hdr         Header
	remaining   int32
	Permissions int32
	err         error
}

// NewScanner validates the header and positions the scanner at the first
// entry.
func NewScanner(buf []byte) (*Scanner, error) {
	r := decode.NewReader(formatName, buf)
	var hdr Header
	var err error
	if hdr.Version, err = r.Int32("version"); err != nil {
		return nil, err
	}
	if hdr.Version < 20121008 {
		return nil, decode.NewError(formatName, 0, "version",
			decode.ErrUnsupportedVersion, ">= 20121008", strconv.Itoa(int(hdr.Version)))
	}
	if hdr.FolderCount, err = r.Int32("folderCount"); err != nil {
		return nil, err
	}
	if hdr.AccountUnlocked, err = r.Bool("accountUnlocked"); err != nil {
		return nil, err
	}
	ticks, err := r.Int64("accountUnlockTime")
	if err != nil {
		return nil, err
	}
	hdr.UnlockTime = timeFromTicks(ticks)
	if hdr.PlayerName, err = r.String("playerName"); err != nil {
		return nil, err
	}
	if hdr.BeatmapCount, err = r.Int32("beatmapCount"); err != nil {
		return nil, err
	}
	if hdr.BeatmapCount < 0 {
		return nil, decode.NewError(formatName, r.Offset()-4, "beatmapCount",
			decode.ErrBadValue, "non-negative count", strconv.Itoa(int(hdr.BeatmapCount)))
	}
	return &Scanner{r: r, hdr: hdr, remaining: hdr.BeatmapCount}, nil
}

// Header returns the decoded preamble.
func (s *Scanner) Header() Header { return s.hdr }

// Next decodes one entry. It returns io.EOF after the last entry, and any
// earlier decode failure is sticky.
func (s *Scanner) Next() (*Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.remaining == 0 {
		perms, err := s.r.Int32("userPermissions")
		if err != nil {
			s.err = decode.NewError(formatName, s.r.Offset(), "userPermissions",
				decode.ErrMissingField, "int32 trailer", fmt.Sprintf("%d bytes", s.r.Remaining()))
			return nil, s.err
		}
		s.Permissions = perms
		s.err = io.EOF
		return nil, io.EOF
	}
	e, err := s.decodeEntry()
	if err != nil {
		s.err = err
		return nil, err
	}
	s.remaining--
	return e, nil
}

func (s *Scanner) decodeEntry() (*Entry, error) {
	r := s.r
	ver := s.hdr.Version
	e := &Entry{}
	var err error

	if ver < verNoEntrySize {
		// Size prefix is redundant with full decoding; read and discard.
		if _, err = r.Int32("entrySize"); err != nil {
			return nil, err
		}
	}
	strs := []struct {
		field string
		dst   *string
	}{
		{"artist", &e.Artist},
		{"artistUnicode", &e.ArtistUnicode},
		{"title", &e.Title},
		{"titleUnicode", &e.TitleUnicode},
		{"creator", &e.Creator},
		{"difficulty", &e.Difficulty},
		{"audioFile", &e.AudioFile},
		{"md5", &e.MD5},
		{"osuFile", &e.OsuFile},
	}
	for _, f := range strs {
		if *f.dst, err = r.String(f.field); err != nil {
			return nil, err
		}
	}
	if e.RankedStatus, err = r.Byte("rankedStatus"); err != nil {
		return nil, err
	}
	if e.CircleCount, err = r.Uint16("circleCount"); err != nil {
		return nil, err
	}
	if e.SliderCount, err = r.Uint16("sliderCount"); err != nil {
		return nil, err
	}
	if e.SpinnerCount, err = r.Uint16("spinnerCount"); err != nil {
		return nil, err
	}
	mod, err := r.Int64("lastModified")
	if err != nil {
		return nil, err
	}
	e.LastModified = timeFromTicks(mod)

	diffs := []struct {
		field string
		dst   *float64
	}{
		{"approachRate", &e.ApproachRate},
		{"circleSize", &e.CircleSize},
		{"hpDrainRate", &e.HPDrainRate},
		{"overallDifficulty", &e.OverallDifficulty},
	}
	for _, f := range diffs {
		if ver < verFloatDifficulty {
			b, err := r.Byte(f.field)
			if err != nil {
				return nil, err
			}
			*f.dst = float64(b)
		} else {
			v, err := r.Float32(f.field)
			if err != nil {
				return nil, err
			}
			*f.dst = float64(v)
		}
	}
	if e.SliderVelocity, err = r.Float64("sliderVelocity"); err != nil {
		return nil, err
	}

	if ver >= verFloatDifficulty {
		// Four mode-specific star rating tables; only the NoMod standard
		// rating is retained.
		for mode := 0; mode < 4; mode++ {
			noMod, err := s.decodeStarRatings(mode)
			if err != nil {
				return nil, err
			}
			if mode == 0 {
				e.StarRating = noMod
			}
		}
	}

	if e.DrainTime, err = r.Int32("drainTime"); err != nil {
		return nil, err
	}
	if e.TotalTime, err = r.Int32("totalTime"); err != nil {
		return nil, err
	}
	if e.PreviewTime, err = r.Int32("previewTime"); err != nil {
		return nil, err
	}

	tpCount, err := r.Int32("timingPointCount")
	if err != nil {
		return nil, err
	}
	if tpCount < 0 {
		return nil, decode.NewError(formatName, r.Offset()-4, "timingPointCount",
			decode.ErrBadValue, "non-negative count", strconv.Itoa(int(tpCount)))
	}
	e.TimingPoints = make([]TimingPoint, 0, tpCount)
	for i := int32(0); i < tpCount; i++ {
		var tp TimingPoint
		if tp.BPM, err = r.Float64("timingPoint.bpm"); err != nil {
			return nil, err
		}
		if tp.Offset, err = r.Float64("timingPoint.offset"); err != nil {
			return nil, err
		}
		if tp.Uninherited, err = r.Bool("timingPoint.uninherited"); err != nil {
			return nil, err
		}
		e.TimingPoints = append(e.TimingPoints, tp)
	}

	if e.DifficultyID, err = r.Int32("difficultyID"); err != nil {
		return nil, err
	}
	if e.BeatmapID, err = r.Int32("beatmapID"); err != nil {
		return nil, err
	}
	if e.ThreadID, err = r.Int32("threadID"); err != nil {
		return nil, err
	}
	for i := range e.Grades {
		if e.Grades[i], err = r.Byte("grade"); err != nil {
			return nil, err
		}
	}
	if e.LocalOffset, err = r.Int16("localOffset"); err != nil {
		return nil, err
	}
	if e.StackLeniency, err = r.Float32("stackLeniency"); err != nil {
		return nil, err
	}
	if e.Mode, err = r.Byte("gameplayMode"); err != nil {
		return nil, err
	}
	if e.Source, err = r.String("source"); err != nil {
		return nil, err
	}
	if e.Tags, err = r.String("tags"); err != nil {
		return nil, err
	}
	if e.OnlineOffset, err = r.Int16("onlineOffset"); err != nil {
		return nil, err
	}
	if e.TitleFont, err = r.String("titleFont"); err != nil {
		return nil, err
	}
	if e.Unplayed, err = r.Bool("unplayed"); err != nil {
		return nil, err
	}
	played, err := r.Int64("lastPlayed")
	if err != nil {
		return nil, err
	}
	e.LastPlayed = timeFromTicks(played)
	if e.IsOsz2, err = r.Bool("isOsz2"); err != nil {
		return nil, err
	}
	if e.FolderName, err = r.String("folderName"); err != nil {
		return nil, err
	}
	checked, err := r.Int64("lastChecked")
	if err != nil {
		return nil, err
	}
	e.LastChecked = timeFromTicks(checked)

	bools := []struct {
		field string
		dst   *bool
	}{
		{"ignoreSound", &e.IgnoreSound},
		{"ignoreSkin", &e.IgnoreSkin},
		{"disableStoryboard", &e.DisableStoryboard},
		{"disableVideo", &e.DisableVideo},
		{"visualOverride", &e.VisualOverride},
	}
	for _, f := range bools {
		if *f.dst, err = r.Bool(f.field); err != nil {
			return nil, err
		}
	}
	if ver < verFloatDifficulty {
		if _, err = r.Int16("legacyUnknown"); err != nil {
			return nil, err
		}
	}
	if _, err = r.Int32("lastEditTime"); err != nil {
		return nil, err
	}
	if e.ManiaScrollSpeed, err = r.Byte("maniaScrollSpeed"); err != nil {
		return nil, err
	}
	return e, nil
}

// decodeStarRatings consumes one mode's mod-combination table and returns the
// NoMod rating, 0 if the table has none.
func (s *Scanner) decodeStarRatings(mode int) (float64, error) {
	r := s.r
	field := fmt.Sprintf("starRatings[%d]", mode)
	count, err := r.Int32(field + ".count")
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, decode.NewError(formatName, r.Offset()-4, field+".count",
			decode.ErrBadValue, "non-negative count", strconv.Itoa(int(count)))
	}
	var noMod float64
	for i := int32(0); i < count; i++ {
		tag, err := r.Byte(field + ".modsTag")
		if err != nil {
			return 0, err
		}
		if tag != 0x08 {
			return 0, decode.NewError(formatName, r.Offset()-1, field+".modsTag",
				decode.ErrBadValue, "tag 0x08", fmt.Sprintf("0x%02x", tag))
		}
		mods, err := r.Int32(field + ".mods")
		if err != nil {
			return 0, err
		}
		tag, err = r.Byte(field + ".ratingTag")
		if err != nil {
			return 0, err
		}
		var rating float64
		if s.hdr.Version >= verFloatStarRating {
			if tag != 0x0c {
				return 0, decode.NewError(formatName, r.Offset()-1, field+".ratingTag",
					decode.ErrBadValue, "tag 0x0c", fmt.Sprintf("0x%02x", tag))
			}
			v, err := r.Float32(field + ".rating")
			if err != nil {
				return 0, err
			}
			rating = float64(v)
		} else {
			if tag != 0x0d {
				return 0, decode.NewError(formatName, r.Offset()-1, field+".ratingTag",
					decode.ErrBadValue, "tag 0x0d", fmt.Sprintf("0x%02x", tag))
			}
			if rating, err = r.Float64(field + ".rating"); err != nil {
				return 0, err
			}
		}
		if mods == 0 {
			noMod = rating
		}
	}
	return noMod, nil
}

const unixEpochTicks = 621355968000000000

func timeFromTicks(ticks int64) time.Time {
	if ticks <= 0 {
		return time.Time{}
	}
	rel := ticks - unixEpochTicks
	return time.Unix(rel/1e7, (rel%1e7)*100).UTC()
}
