package osudb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"hitstat/internal/decode"
)

const testVersion = 20210520

type dbBuilder struct {
	buf bytes.Buffer
}

func (b *dbBuilder) byte_(v byte) { b.buf.WriteByte(v) }
func (b *dbBuilder) bool_(v bool) {
	var bit byte
	if v {
		bit = 1
	}
	b.buf.WriteByte(bit)
}
func (b *dbBuilder) u16(v uint16)  { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *dbBuilder) i32(v int32)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *dbBuilder) i64(v int64)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *dbBuilder) f32(v float32) { binary.Write(&b.buf, binary.LittleEndian, math.Float32bits(v)) }
func (b *dbBuilder) f64(v float64) { binary.Write(&b.buf, binary.LittleEndian, math.Float64bits(v)) }
func (b *dbBuilder) str(s string) {
	if s == "" {
		b.buf.WriteByte(0x00)
		return
	}
	b.buf.WriteByte(0x0b)
	b.buf.WriteByte(byte(len(s)))
	b.buf.WriteString(s)
}

func (b *dbBuilder) header(count int32) {
	b.i32(testVersion)
	b.i32(3)      // folder count
	b.bool_(true) // account unlocked
	b.i64(0)      // unlock time
	b.str("tester")
	b.i32(count)
}

func (b *dbBuilder) starTable(noMod float64) {
	b.i32(2)
	b.byte_(0x08)
	b.i32(0) // NoMod
	b.byte_(0x0d)
	b.f64(noMod)
	b.byte_(0x08)
	b.i32(64) // DT
	b.byte_(0x0d)
	b.f64(noMod + 1.2)
}

func (b *dbBuilder) entry(md5, folder, file string, od float64) {
	b.str("artist")
	b.str("")
	b.str("title")
	b.str("")
	b.str("mapper")
	b.str("Insane")
	b.str("audio.mp3")
	b.str(md5)
	b.str(file)
	b.byte_(4) // ranked
	b.u16(120) // circles
	b.u16(40)  // sliders
	b.u16(2)   // spinners
	b.i64(0)   // last modified
	b.f32(9)   // AR
	b.f32(4)   // CS
	b.f32(5)   // HP
	b.f32(float32(od))
	b.f64(1.4) // slider velocity
	for mode := 0; mode < 4; mode++ {
		b.starTable(5.5)
	}
	b.i32(95)     // drain
	b.i32(100000) // total
	b.i32(2500)   // preview
	b.i32(2)      // timing points
	b.f64(300)    // beat length ms
	b.f64(815)
	b.bool_(true)
	b.f64(-50) // inherited point
	b.f64(815)
	b.bool_(false)
	b.i32(101)
	b.i32(202)
	b.i32(303)
	for i := 0; i < 4; i++ {
		b.byte_(9)
	}
	b.u16(0)   // local offset
	b.f32(0.7) // stack leniency
	b.byte_(0) // mode
	b.str("")
	b.str("stream")
	b.u16(0)
	b.str("")
	b.bool_(false)
	b.i64(0)
	b.bool_(false)
	b.str(folder)
	b.i64(0)
	for i := 0; i < 5; i++ {
		b.bool_(false)
	}
	b.i32(0)   // last edit time
	b.byte_(0) // mania scroll speed
}

func buildDB(t *testing.T, entries int) []byte {
	t.Helper()
	b := &dbBuilder{}
	b.header(int32(entries))
	for i := 0; i < entries; i++ {
		b.entry("hash-"+string(rune('a'+i)), "folder", "map.osu", 7)
	}
	b.i32(1) // user permissions trailer
	return b.buf.Bytes()
}

func TestScannerStreamsEntries(t *testing.T) {
	sc, err := NewScanner(buildDB(t, 2))
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if got := sc.Header().BeatmapCount; got != 2 {
		t.Fatalf("BeatmapCount = %d", got)
	}
	if got := sc.Header().PlayerName; got != "tester" {
		t.Fatalf("PlayerName = %q", got)
	}

	first, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.MD5 != "hash-a" || first.FolderName != "folder" || first.OsuFile != "map.osu" {
		t.Fatalf("entry = %+v", first)
	}
	if first.OverallDifficulty != 7 {
		t.Fatalf("OD = %v", first.OverallDifficulty)
	}
	if first.StarRating != 5.5 {
		t.Fatalf("StarRating = %v", first.StarRating)
	}
	if len(first.TimingPoints) != 2 || !first.TimingPoints[0].Uninherited {
		t.Fatalf("TimingPoints = %+v", first.TimingPoints)
	}

	if _, err = sc.Next(); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if _, err = sc.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
	if sc.Permissions != 1 {
		t.Fatalf("Permissions = %d", sc.Permissions)
	}
	// EOF is sticky.
	if _, err = sc.Next(); err != io.EOF {
		t.Fatalf("want sticky io.EOF, got %v", err)
	}
}

func TestScannerRestartableFromStart(t *testing.T) {
	buf := buildDB(t, 1)
	for round := 0; round < 2; round++ {
		sc, err := NewScanner(buf)
		if err != nil {
			t.Fatalf("round %d NewScanner: %v", round, err)
		}
		e, err := sc.Next()
		if err != nil {
			t.Fatalf("round %d Next: %v", round, err)
		}
		if e.MD5 != "hash-a" {
			t.Fatalf("round %d MD5 = %q", round, e.MD5)
		}
	}
}

func TestScannerTruncatedEntry(t *testing.T) {
	buf := buildDB(t, 2)
	sc, err := NewScanner(buf[:len(buf)-60])
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if _, err = sc.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	_, err = sc.Next()
	if !errors.Is(err, decode.ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
	// Failures are sticky too.
	if _, err2 := sc.Next(); !errors.Is(err2, decode.ErrTruncated) {
		t.Fatalf("want sticky error, got %v", err2)
	}
}

func TestScannerMissingPermissionsTrailer(t *testing.T) {
	buf := buildDB(t, 1)
	sc, err := NewScanner(buf[:len(buf)-4])
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if _, err = sc.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err = sc.Next(); !errors.Is(err, decode.ErrMissingField) {
		t.Fatalf("want ErrMissingField, got %v", err)
	}
}

func TestScannerUnsupportedVersion(t *testing.T) {
	b := &dbBuilder{}
	b.i32(20100101)
	_, err := NewScanner(b.buf.Bytes())
	if !errors.Is(err, decode.ErrUnsupportedVersion) {
		t.Fatalf("want ErrUnsupportedVersion, got %v", err)
	}
}

func TestScannerBadStarRatingTag(t *testing.T) {
	b := &dbBuilder{}
	b.header(1)
	b.str("artist")
	b.str("")
	b.str("title")
	b.str("")
	b.str("mapper")
	b.str("Hard")
	b.str("audio.mp3")
	b.str("deadbeef")
	b.str("map.osu")
	b.byte_(4)
	b.u16(1)
	b.u16(0)
	b.u16(0)
	b.i64(0)
	for i := 0; i < 4; i++ {
		b.f32(5)
	}
	b.f64(1.4)
	b.i32(1)
	b.byte_(0x09) // wrong pair tag
	sc, err := NewScanner(b.buf.Bytes())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if _, err = sc.Next(); !errors.Is(err, decode.ErrBadValue) {
		t.Fatalf("want ErrBadValue, got %v", err)
	}
}
