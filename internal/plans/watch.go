package plans

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Notifier signals that plans may have changed. The returned channel is
// closed on the next change.
type Notifier interface {
	Changes() <-chan struct{}
}

// Watcher turns writes to a plan database (and its WAL files) into change
// notifications, so a process waiting on approval wakes up when another
// process decides.
type Watcher struct {
	watcher *fsnotify.Watcher
	base    string

	mu      sync.Mutex
	changed chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatchFile starts watching the database file at path.
func WatchFile(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	w := &Watcher{
		watcher: fw,
		base:    filepath.Base(path),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// db, db-wal and db-shm all count
			if !strings.HasPrefix(filepath.Base(ev.Name), w.base) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.notify()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("plan watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify() {
	w.mu.Lock()
	close(w.changed)
	w.changed = make(chan struct{})
	w.mu.Unlock()
}

// Changes implements Notifier.
func (w *Watcher) Changes() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// AwaitDecision blocks until plan id leaves the pending status and returns
// it. It re-reads the registry on every notification and at least once per
// poll interval; n may be nil to rely on polling alone.
func AwaitDecision(ctx context.Context, reg Registry, id string, n Notifier, poll time.Duration) (Plan, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		var changes <-chan struct{}
		if n != nil {
			changes = n.Changes()
		}
		p, err := reg.Get(ctx, id)
		if err != nil {
			return Plan{}, err
		}
		if p.Status != StatusPending {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return Plan{}, ctx.Err()
		case <-changes:
		case <-ticker.C:
		}
	}
}
