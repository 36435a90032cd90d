package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce waits out editor write bursts before reloading.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and reloads the store on change. The
// swap happens between evaluations only; requests already holding a
// snapshot are unaffected.
type Reloader struct {
	watcher *fsnotify.Watcher
	store   *Store
	logger  *slog.Logger
}

// NewReloader creates a file watcher for the store's policy path. The
// containing directory is watched too so atomic rename-into-place saves are
// seen.
func NewReloader(store *Store, logger *slog.Logger) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}

	dir := filepath.Dir(store.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", dir, err)
	}
	if _, err := os.Stat(store.path); err == nil {
		if err := watcher.Add(store.path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %q: %w", store.path, err)
		}
	}

	return &Reloader{watcher: watcher, store: store, logger: logger}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(r.store.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if _, err := r.store.Load(context.Background()); err != nil {
						r.logger.Warn("policy hot-reload failed", "error", err)
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("policy watcher error", "error", err)
		}
	}
}
