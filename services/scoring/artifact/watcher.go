// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherOptions configures the reload watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait after the last file event before
	// triggering a reload. Training jobs write artifacts with a
	// write-then-rename, which fsnotify reports as several events in quick
	// succession; debouncing collapses them into one reload.
	DebounceWindow time.Duration

	// Logger for watcher events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() *WatcherOptions {
	return &WatcherOptions{
		DebounceWindow: 500 * time.Millisecond,
	}
}

// Watcher triggers artifact reloads when the artifact file changes on disk.
//
// # Description
//
// Watcher monitors the artifact file's parent directory rather than the
// file itself: editors and training jobs replace the file atomically via
// rename, which would silently detach a watch placed on the old inode.
// Events for other files in the directory are ignored. Matching events are
// debounced, then handed to the reload callback on the watcher goroutine.
//
// The callback's errors are not retried here. A failed reload leaves the
// adapter serving the previous artifact, and the next write to the file
// starts a fresh attempt.
//
// # Thread Safety
//
// Start and Stop are safe to call from any goroutine. Stop is idempotent.
type Watcher struct {
	path     string
	reload   func() error
	opts     *WatcherOptions
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for the given artifact path.
//
// The reload callback runs on the watcher's goroutine after each debounced
// change. It is typically Adapter.Reload wrapped with metrics recording.
func NewWatcher(path string, reload func() error, opts *WatcherOptions) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact path is required")
	}
	if reload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if opts == nil {
		opts = DefaultWatcherOptions()
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultWatcherOptions().DebounceWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:   filepath.Clean(path),
		reload: reload,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Start begins watching the artifact's directory for changes.
//
// Returns an error if the watcher is already running or the directory
// cannot be watched. The watch stops when ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.watching = true

	go w.run(ctx)

	w.logger.Info("Artifact watcher started",
		"path", w.path,
		"debounce", w.opts.DebounceWindow)
	return nil
}

// Stop halts the watcher and releases the underlying fsnotify resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// IsWatching reports whether the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// run consumes fsnotify events until shutdown, debouncing bursts of events
// for the artifact file into single reload calls.
func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.fsw.Close()
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	}()

	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Artifact watcher stopping", "reason", "context cancelled")
			return

		case <-w.done:
			w.logger.Info("Artifact watcher stopping", "reason", "stop requested")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			w.logger.Debug("Artifact file event", "op", event.Op.String())
			if debounce == nil {
				debounce = time.NewTimer(w.opts.DebounceWindow)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.opts.DebounceWindow)
			}
			pending = debounce.C

		case <-pending:
			pending = nil
			if err := w.reload(); err != nil {
				w.logger.Error("Artifact reload after file change failed", "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Artifact watcher error", "error", err)
		}
	}
}

// matches reports whether the event concerns the artifact file and is an
// operation that can change its contents.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Rename)
}
