// Package watch re-triggers linking when documents in the vault change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/crosslink/internal/storage"
)

// DefaultDebounce is the quiet period after the last event before a batch is
// delivered.
const DefaultDebounce = 500 * time.Millisecond

// ChangeCallback receives the sorted, de-duplicated slash paths that changed
// since the previous batch. It runs on the watcher goroutine, so batches
// never overlap.
type ChangeCallback func(ctx context.Context, paths []string)

// Options tune which files are reported and how events are batched.
type Options struct {
	Extension string
	Debounce  time.Duration
	// Folders limits reports to documents under these slash paths relative to
	// root. Empty, "" or "." cover the whole vault.
	Folders []string
}

// scope matches vault-relative slash paths against a folder list.
type scope []string

func newScope(folders []string) scope {
	var s scope
	for _, f := range folders {
		f = path.Clean(filepath.ToSlash(f))
		if f == "." || f == "" {
			return nil
		}
		s = append(s, f)
	}
	return s
}

func (s scope) contains(rel string) bool {
	if len(s) == 0 {
		return true
	}
	for _, f := range s {
		if rel == f || strings.HasPrefix(rel, f+"/") {
			return true
		}
	}
	return false
}

// Watch starts an fsnotify watcher on root and delivers debounced batches of
// changed document paths to cb until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Temporary
// files from atomic writes and hidden directories are ignored.
func Watch(ctx context.Context, root string, opts Options, logger *slog.Logger, cb ChangeCallback) error {
	ext := opts.Extension
	if ext == "" {
		ext = storage.DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pending := make(map[string]struct{})
	inScope := newScope(opts.Folders)
	track := func(absPath string) bool {
		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)
		if !inScope.contains(rel) {
			return false
		}
		pending[rel] = struct{}{}
		return true
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer = nil
			fire = nil
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			logger.Debug("watcher: batch", slog.Int("paths", len(paths)))
			cb(ctx, paths)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if hidden(filepath.Base(absPath)) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files may already be inside the directory.
					found := false
					_ = filepath.WalkDir(absPath, func(p string, d fs.DirEntry, err error) error {
						if err == nil && !d.IsDir() && relevant(p, ext) && track(p) {
							found = true
						}
						return nil
					})
					if found {
						schedule()
					}
					continue
				}
			}

			if !relevant(absPath, ext) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if track(absPath) {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func relevant(p, ext string) bool {
	base := filepath.Base(p)
	if strings.HasPrefix(base, storage.TempPrefix) {
		return false
	}
	return strings.HasSuffix(p, ext)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
