// Package watch reports when the history of a working copy may have changed,
// so that callers caching computed history know to refresh it.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/histget/internal/debounce"
	"github.com/thiagokokada/histget/internal/repository"
)

const DefaultDelay = 350 * time.Millisecond

type Watcher struct {
	fs       *fsnotify.Watcher
	debounce *debounce.Debouncer
	paths    []string
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New watches the metadata of the working copy at root and calls onChange,
// from a separate goroutine, once changes settle for delay.
func New(kind repository.Kind, root string, delay time.Duration, onChange func()) (*Watcher, error) {
	paths := repository.MetadataPaths(kind, root)
	if len(paths) == 0 {
		return nil, fmt.Errorf("watch %s: no %s metadata found", root, kind)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, p := range paths {
		slog.Debug("adding path to FS watcher", slog.String("path", p))
		if err := fsw.Add(p); err != nil {
			return nil, fmt.Errorf("watch %s: %w", p, errors.Join(err, fsw.Close()))
		}
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	w := &Watcher{
		fs:       fsw,
		debounce: debounce.New(delay, onChange),
		paths:    paths,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Paths lists the watched directories.
func (w *Watcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ignored(ev.Name) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			w.debounce.Trigger()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// Close stops watching. A change notification already scheduled is dropped.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		err := w.fs.Close()
		<-w.done
		if w.debounce.Pending() {
			slog.Debug("watch closed, dropping pending change", slog.Any("paths", w.paths))
		}
		w.debounce.Stop()
		w.closeErr = err
	})
	return w.closeErr
}

// ignored filters the lock and IPC files tools create on every invocation,
// including read-only ones.
func ignored(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".lock", ".ipc":
		return true
	}
	switch filepath.Base(name) {
	case "lock", "wlock", "undo.backup.dirstate", "view.stg":
		return true
	}
	return false
}
