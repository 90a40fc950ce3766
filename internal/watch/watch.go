// Package watch monitors the replays directory and feeds new replay files
// to an analysis callback.
package watch

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// settleDelay gives the client time to finish writing a replay before
	// we read it.
	settleDelay = 500 * time.Millisecond

	maxConcurrentRuns = 2
)

// Handler processes one replay file path.
type Handler func(ctx context.Context, path string)

// Watcher delivers each newly created .osr file to the handler exactly
// once, after a settle delay, with a bounded number of concurrent runs.
type Watcher struct {
	dir     string
	handler Handler
	log     *log.Logger

	tokens chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New prepares a watcher over dir. The handler is invoked from worker
// goroutines; it must be safe for concurrent use.
func New(dir string, handler Handler, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	w := &Watcher{
		dir:     dir,
		handler: handler,
		log:     logger,
		tokens:  make(chan struct{}, maxConcurrentRuns),
		pending: make(map[string]*time.Timer),
	}
	for i := 0; i < maxConcurrentRuns; i++ {
		w.tokens <- struct{}{}
	}
	return w
}

// Run watches until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Printf("watching %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".osr") {
				continue
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("watch error: %v", err)
		}
	}
}

// schedule debounces repeated events for the same file. Each new event
// restarts the settle timer, so the handler runs once the writer goes
// quiet.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-w.tokens:
		}
		defer func() { w.tokens <- struct{}{} }()
		w.handler(ctx, path)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
