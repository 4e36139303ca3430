package share

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alexjbarnes/vault-share/internal/vault"
)

// debounceDelay is how long the watcher waits after the last write
// event before re-sharing a note. Editors fire bursts of events per
// save; one upload per burst is plenty.
const debounceDelay = 2 * time.Second

// Watcher monitors the vault and re-shares notes that already carry a
// ShareRecord when their content changes. Notes that were never shared
// are left alone; sharing stays a deliberate user action.
type Watcher struct {
	vault  *vault.Vault
	store  *Store
	coord  *Coordinator
	logger *slog.Logger

	// debounce overrides debounceDelay in tests.
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a Watcher.
func NewWatcher(v *vault.Vault, store *Store, coord *Coordinator, logger *slog.Logger) *Watcher {
	return &Watcher{
		vault:    v,
		store:    store,
		coord:    coord,
		logger:   logger,
		debounce: debounceDelay,
		pending:  make(map[string]*time.Timer),
	}
}

// Watch blocks until the context is cancelled, re-sharing changed
// shared notes as they settle.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addRecursive(watcher); err != nil {
		return fmt.Errorf("adding vault to watcher: %w", err)
	}

	w.logger.Info("watching vault for changes", slog.String("root", w.vault.Root()))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			w.handleEvent(ctx, watcher, event)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			// fsnotify errors are non-fatal (e.g. too many watches).
			w.logger.Warn("watch error", slog.String("error", werr.Error()))
		}
	}
}

// handleEvent reacts to a single fsnotify event.
func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	name := filepath.Base(event.Name)

	if event.Has(fsnotify.Create) {
		// New directory: start watching it so files created inside
		// are seen. Lstat avoids following symlinks out of the vault.
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(name, ".") {
				_ = watcher.Add(event.Name)
			}

			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".md") {
		return
	}

	rel, err := filepath.Rel(w.vault.Root(), event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	w.schedule(ctx, vault.NormalizePath(rel))
}

// schedule arms (or re-arms) the debounce timer for one note.
func (w *Watcher) schedule(ctx context.Context, relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[relPath]; ok {
		timer.Reset(w.debounce)
		return
	}

	w.pending[relPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, relPath)
		w.mu.Unlock()

		w.reshare(ctx, relPath)
	})
}

// reshare re-uploads one settled note, but only when it already has a
// ShareRecord.
func (w *Watcher) reshare(ctx context.Context, relPath string) {
	if ctx.Err() != nil {
		return
	}

	rec, err := w.store.Read(relPath)
	if err != nil {
		w.logger.Warn("reading share record failed",
			slog.String("path", relPath),
			slog.String("error", err.Error()),
		)

		return
	}

	if rec == nil {
		return
	}

	if _, err := w.coord.Share(ctx, relPath, Options{}); err != nil {
		w.logger.Warn("auto re-share failed",
			slog.String("path", relPath),
			slog.String("error", err.Error()),
		)
	}
}

// cancelPending stops all armed debounce timers.
func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p, timer := range w.pending {
		timer.Stop()
		delete(w.pending, p)
	}
}

// addRecursive walks the vault root and adds all non-hidden directories
// to the fsnotify watcher.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.vault.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.vault.Root() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}
