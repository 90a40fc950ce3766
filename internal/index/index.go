// Package index maintains the MD5-keyed lookup table over the client's
// beatmap database.
package index

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"hitstat/internal/osudb"
)

// ErrNotFound reports an MD5 hash with no entry in the loaded index.
var ErrNotFound = fmt.Errorf("index: hash not found")

// Table is the in-memory hash index. Lookups are safe for concurrent use;
// Reload swaps the whole map atomically under the write lock.
type Table struct {
	mu       sync.RWMutex
	path     string
	songsDir string
	entries  map[string]*osudb.Entry
	warn     *log.Logger
}

// New loads the database at dbPath. songsDir is the Songs directory the
// entries' folder names are relative to. warn may be nil.
func New(dbPath, songsDir string, warn *log.Logger) (*Table, error) {
	t := &Table{path: dbPath, songsDir: songsDir, warn: warn}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the database from disk and replaces the table in one
// swap. Readers never observe a partially built index.
func (t *Table) Reload() error {
	buf, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("index: read %s: %w", t.path, err)
	}
	sc, err := osudb.NewScanner(buf)
	if err != nil {
		return err
	}
	entries := make(map[string]*osudb.Entry)
	skipped := 0
	for {
		e, err := sc.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if e.MD5 == "" || e.OsuFile == "" || e.FolderName == "" {
			// Unsubmitted or corrupt entries carry empty locator fields.
			skipped++
			continue
		}
		if prev, ok := entries[e.MD5]; ok && t.warn != nil {
			t.warn.Printf("index: duplicate hash %s (%s replaces %s)", e.MD5, e.OsuFile, prev.OsuFile)
		}
		entries[e.MD5] = e
	}
	if skipped > 0 && t.warn != nil {
		t.warn.Printf("index: skipped %d entries with incomplete locator fields", skipped)
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Lookup returns the entry for an MD5 hash.
func (t *Table) Lookup(md5 string) (*osudb.Entry, error) {
	t.mu.RLock()
	e, ok := t.entries[md5]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, md5)
	}
	return e, nil
}

// ChartPath resolves an entry to its .osu file path under the Songs
// directory.
func (t *Table) ChartPath(e *osudb.Entry) string {
	return filepath.Join(t.songsDir, e.FolderName, e.OsuFile)
}

// Len reports the number of indexed charts.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
