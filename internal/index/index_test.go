package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

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
	b.i32(20210520)
	b.i32(1)
	b.bool_(true)
	b.i64(0)
	b.str("tester")
	b.i32(count)
}

func (b *dbBuilder) entry(md5, folder, file string) {
	b.str("artist")
	b.str("")
	b.str("title")
	b.str("")
	b.str("mapper")
	b.str("Hard")
	b.str("audio.mp3")
	b.str(md5)
	b.str(file)
	b.byte_(4)
	b.u16(100)
	b.u16(20)
	b.u16(1)
	b.i64(0)
	b.f32(9)
	b.f32(4)
	b.f32(5)
	b.f32(8)
	b.f64(1.4)
	for mode := 0; mode < 4; mode++ {
		b.i32(1)
		b.byte_(0x08)
		b.i32(0)
		b.byte_(0x0d)
		b.f64(5.0)
	}
	b.i32(90)
	b.i32(95000)
	b.i32(0)
	b.i32(1)
	b.f64(400)
	b.f64(0)
	b.bool_(true)
	b.i32(11)
	b.i32(22)
	b.i32(33)
	for i := 0; i < 4; i++ {
		b.byte_(9)
	}
	b.u16(0)
	b.f32(0.7)
	b.byte_(0)
	b.str("")
	b.str("")
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
	b.i32(0)
	b.byte_(0)
}

type fixtureEntry struct {
	md5, folder, file string
}

func writeDB(t *testing.T, path string, entries []fixtureEntry) {
	t.Helper()
	b := &dbBuilder{}
	b.header(int32(len(entries)))
	for _, e := range entries {
		b.entry(e.md5, e.folder, e.file)
	}
	b.i32(0)
	if err := os.WriteFile(path, b.buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write db: %v", err)
	}
}

func TestTableLookup(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{
		{"aaaa", "123 Artist - Title", "map.osu"},
		{"bbbb", "456 Other", "other.osu"},
	})
	tbl, err := New(db, filepath.Join(dir, "Songs"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	e, err := tbl.Lookup("aaaa")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.OsuFile != "map.osu" {
		t.Fatalf("OsuFile = %q", e.OsuFile)
	}
	want := filepath.Join(dir, "Songs", "123 Artist - Title", "map.osu")
	if got := tbl.ChartPath(e); got != want {
		t.Fatalf("ChartPath = %q, want %q", got, want)
	}
}

func TestTableLookupMiss(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{{"aaaa", "f", "m.osu"}})
	tbl, err := New(db, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err = tbl.Lookup("cccc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTableSkipsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{
		{"", "folder", "map.osu"},
		{"aaaa", "", "map.osu"},
		{"bbbb", "folder", "map.osu"},
	})
	var sb strings.Builder
	tbl, err := New(db, dir, log.New(&sb, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tbl.Len())
	}
	if !strings.Contains(sb.String(), "skipped 2") {
		t.Fatalf("expected skip warning, log was %q", sb.String())
	}
}

func TestTableDuplicateHashLastWins(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{
		{"aaaa", "folder", "first.osu"},
		{"aaaa", "folder", "second.osu"},
	})
	var sb strings.Builder
	tbl, err := New(db, dir, log.New(&sb, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e, err := tbl.Lookup("aaaa")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.OsuFile != "second.osu" {
		t.Fatalf("OsuFile = %q, want second.osu", e.OsuFile)
	}
	if !strings.Contains(sb.String(), "duplicate hash") {
		t.Fatalf("expected duplicate warning, log was %q", sb.String())
	}
}

func TestTableReloadSwapsContents(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{{"aaaa", "f", "m.osu"}})
	tbl, err := New(db, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writeDB(t, db, []fixtureEntry{{"bbbb", "f", "m.osu"}})
	if err = tbl.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err = tbl.Lookup("aaaa"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale entry survived reload")
	}
	if _, err = tbl.Lookup("bbbb"); err != nil {
		t.Fatalf("new entry missing after reload: %v", err)
	}
}

func TestTableConcurrentLookups(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "osu!.db")
	writeDB(t, db, []fixtureEntry{{"aaaa", "f", "m.osu"}})
	tbl, err := New(db, dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tbl.Lookup("aaaa")
			}
		}()
	}
	for i := 0; i < 4; i++ {
		tbl.Reload()
	}
	wg.Wait()
}
