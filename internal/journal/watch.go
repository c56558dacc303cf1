package journal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// filePollInterval backs up the fsnotify watch; some filesystems miss
// create events for files written by another process.
const filePollInterval = time.Second

// WaitForFile blocks until the journal file exists or ctx is done. It
// watches the parent directory for create events and polls as a
// fallback. Returns false when cancelled.
func WaitForFile(ctx context.Context, path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}

	dir := filepath.Dir(path)
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer func(w *fsnotify.Watcher) { _ = w.Close() }(watcher)
		if addErr := watcher.Add(dir); addErr != nil {
			log.WithError(addErr).WithField("dir", dir).Debug("cannot watch journal directory, polling only")
			watcher = nil
		}
	} else {
		log.WithError(err).Debug("fsnotify unavailable, polling for journal file")
		watcher = nil
	}

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			if ev.Op.Has(fsnotify.Create) && filepath.Clean(ev.Name) == filepath.Clean(path) {
				return true
			}
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				return true
			}
		}
	}
}

// sleepCtx waits for d unless ctx is done first. Reports whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
