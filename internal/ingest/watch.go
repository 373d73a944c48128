package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/qbank/internal/logger"
)

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Settle is how long a file must be quiet before it is ingested.
	Settle time.Duration
	// Retries is how many times a file missing its HTML sibling is retried.
	Retries int
	// OnResult, if set, is called after each ingest attempt.
	OnResult func(*Result, error)
}

// DefaultWatchOptions waits half a second and retries a missing sibling ten
// times.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{Settle: 500 * time.Millisecond, Retries: 10}
}

type pendingFile struct {
	due      time.Time
	attempts int
}

// Watch ingests metadata files created or written in dir until ctx is done.
// Files are handled one at a time once they have settled.
func (in *Ingester) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	if opts.Settle <= 0 {
		opts.Settle = DefaultWatchOptions().Settle
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("watching for extractions", "dir", dir)

	pending := make(map[string]*pendingFile)
	tick := time.NewTicker(opts.Settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
				continue
			}
			p, ok := pending[ev.Name]
			if !ok {
				p = &pendingFile{}
				pending[ev.Name] = p
			}
			p.due = time.Now().Add(opts.Settle)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case now := <-tick.C:
			for _, path := range due(pending, now) {
				if ctx.Err() != nil {
					return nil
				}
				p := pending[path]
				res, err := in.IngestFile(ctx, path)
				if errors.Is(err, ErrMissingSibling) && p.attempts < opts.Retries {
					p.attempts++
					p.due = now.Add(opts.Settle)
					continue
				}
				delete(pending, path)

				if err != nil {
					logger.Warn("watched file not ingested", "file", filepath.Base(path), "error", err)
				}
				if opts.OnResult != nil {
					opts.OnResult(res, err)
				}
			}
		}
	}
}

// due returns the pending paths whose settle time has passed, in name order.
func due(pending map[string]*pendingFile, now time.Time) []string {
	var out []string
	for path, p := range pending {
		if !now.Before(p.due) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
