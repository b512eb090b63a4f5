// Package watch runs incremental updates when documents under the indexed
// root change. Events are debounced so that a burst of writes triggers one
// update.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Trigger performs one incremental update.
type Trigger func(ctx context.Context) error

type Watcher struct {
	root     string
	suffix   string
	debounce time.Duration
	trigger  Trigger
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
}

func New(root, suffix string, debounce time.Duration, trigger Trigger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		suffix:   suffix,
		debounce: debounce,
		trigger:  trigger,
		fsw:      fsw,
		logger:   slog.Default().With("component", "watch"),
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

// relevant reports whether an event can change the catalog.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
			}
			return true
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	return strings.HasSuffix(ev.Name, w.suffix) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// Run blocks until ctx is done. Errors returned by the trigger are logged
// and do not stop the watcher. Timer Reset relies on the Go 1.23 timer
// semantics: no stale tick survives Stop or Reset.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	w.logger.Info("watching", "root", w.root, "suffix", w.suffix, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change observed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("event queue overflowed, scheduling update")
				timer.Reset(w.debounce)
				continue
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if err := w.trigger(ctx); err != nil {
				w.logger.Error("incremental update failed", "error", err)
			}
		}
	}
}
