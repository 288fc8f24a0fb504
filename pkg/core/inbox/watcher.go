// Package inbox watches a drop directory and hands each settled portfolio
// file to a handler.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fund_extractor/pkg/core/reader"
)

// DefaultSettle is how long a file must go without writes before it is handled.
const DefaultSettle = 750 * time.Millisecond

// Handler processes one file. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, path string) error

type Watcher struct {
	dir     string
	handler Handler
	logger  *zap.Logger

	// Settle overrides DefaultSettle.
	Settle time.Duration
	// Backfill handles files already present when Run starts.
	Backfill bool
}

func New(dir string, handler Handler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, handler: handler, logger: logger, Settle: DefaultSettle}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("Watching inbox", zap.String("dir", w.dir), zap.Duration("settle", w.Settle))

	if w.Backfill {
		for _, path := range w.existing() {
			w.handle(ctx, path)
		}
	}

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.candidate(ev); ok {
				pending[path] = time.Now()
			} else if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				delete(pending, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		case now := <-ticker.C:
			for _, path := range due(pending, now, settle) {
				delete(pending, path)
				w.handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	log := w.logger.With(zap.String("file", filepath.Base(path)))
	log.Info("Inbox file ready")
	if err := w.handler(ctx, path); err != nil {
		log.Error("Inbox file failed", zap.Error(err))
		return
	}
	log.Info("Inbox file processed")
}

// candidate reports whether ev names a regular, visible file with a
// supported extension that was created or written.
func (w *Watcher) candidate(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !eligible(ev.Name) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return ev.Name, true
}

func (w *Watcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("Inbox backfill failed", zap.Error(err))
		return nil
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && eligible(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return paths
}

func eligible(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return reader.IsSupported(filepath.Ext(base))
}

// due returns the pending paths idle for at least settle, sorted.
func due(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var ready []string
	for path, seen := range pending {
		if now.Sub(seen) >= settle {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}
