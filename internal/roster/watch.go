package roster

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events most editors
// produce for a single save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the roster whenever its file changes, until ctx is
// cancelled. onReload, if non-nil, is called after each successful reload
// with the squad id. Reload failures are logged and the previous membership
// stays in effect.
func (r *Roster) Watch(ctx context.Context, onReload func(squadID string)) error {
	if r.path == "" {
		return fmt.Errorf("no roster file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create roster watcher: %w", err)
	}

	// Watch the directory rather than the file: editors that replace the
	// file on save would otherwise detach the watch.
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(r.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					timerC = timer.C
				} else {
					timer.Reset(reloadDebounce)
				}
			case <-timerC:
				squadID, err := r.Load()
				if err != nil {
					log.Printf("[roster] reload failed, keeping previous membership: %v", err)
					continue
				}
				log.Printf("[roster] reloaded squad %s from %s", squadID, r.path)
				if onReload != nil {
					onReload(squadID)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[roster] watcher error: %v", err)
			}
		}
	}()

	return nil
}
