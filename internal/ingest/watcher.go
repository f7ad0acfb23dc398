// Package ingest discovers documents dropped into watched directories.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/exams-tracker/constants"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files first
	Debounce    time.Duration // coalesce rapid create/write bursts; 0 emits immediately
	Logger      *slog.Logger
}

// StartWatcher emits the path of every supported document created or
// rewritten under cfg.Roots. Hidden files and directories are ignored. Both
// channels are closed once ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	// addDir watches root and every visible directory below it, passing each
	// supported file found on the way to found.
	addDir := func(root string, found func(string)) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if Supported(path) {
				found(path)
			}
			return nil
		})
	}

	var initial []string
	collect := func(p string) {
		if cfg.InitialScan {
			initial = append(initial, p)
		}
	}
	for _, r := range cfg.Roots {
		if err := addDir(r, collect); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		// pending maps each path to the time it becomes quiet. A single timer
		// is armed for the earliest deadline.
		pending := map[string]time.Time{}
		var timer *time.Timer
		var fire <-chan time.Time
		arm := func() {
			fire = nil
			if len(pending) == 0 {
				return
			}
			var next time.Time
			for _, due := range pending {
				if next.IsZero() || due.Before(next) {
					next = due
				}
			}
			d := max(time.Until(next), 0)
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d)
			}
			fire = timer.C
		}
		// flush emits every path whose deadline is not after now.
		flush := func(now time.Time) bool {
			due := make([]string, 0, len(pending))
			for p, at := range pending {
				if !at.After(now) {
					due = append(due, p)
				}
			}
			slices.Sort(due)
			for _, p := range due {
				delete(pending, p)
				// Skip files removed or renamed away before the debounce expired.
				if _, err := os.Stat(p); err != nil {
					continue
				}
				if !emit(p) {
					return false
				}
			}
			return true
		}
		enqueue := func(p string) {
			pending[p] = time.Now().Add(cfg.Debounce)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-fire:
				fire = nil
				if !flush(now) {
					return
				}
				arm()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if IsHidden(e.Name) {
					continue
				}
				queued := false
				if e.Has(fsnotify.Create) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						// A directory moved in arrives with its files already inside.
						if err := addDir(e.Name, func(p string) { enqueue(p); queued = true }); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						if !queued {
							continue
						}
					}
				}
				if !queued {
					if !Supported(e.Name) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
						continue
					}
					enqueue(e.Name)
				}
				if cfg.Debounce <= 0 {
					if !flush(time.Now()) {
						return
					}
					continue
				}
				arm()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Supported reports whether path has an extension the pipeline accepts.
func Supported(path string) bool {
	return constants.MediaTypeForExt(filepath.Ext(path)) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
