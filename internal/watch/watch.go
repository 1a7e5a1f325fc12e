// Package watch keeps a folder index fresh: filesystem events trigger a
// debounced sync-and-prune pass, with a periodic full pass as a fallback for
// events the notifier misses.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// SyncFunc runs one incremental pass over root.
type SyncFunc func(ctx context.Context, root string) error

type Watcher struct {
	root     string
	sync     SyncFunc
	debounce time.Duration
	interval time.Duration
}

func New(root string, sync SyncFunc, debounce, interval time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Watcher{root: root, sync: sync, debounce: debounce, interval: interval}
}

// Run blocks until ctx is cancelled. Every directory under root is watched;
// directories created later are added as their create events arrive.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := addDirs(fsw, w.root); err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var pending *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(w.debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					// A new directory needs its own watch before events
					// inside it can be seen.
					_ = addDirs(fsw, ev.Name)
				}
			}
			schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		case <-fire:
			w.runSync(ctx)
		case <-ticker.C:
			w.runSync(ctx)
		}
	}
}

func (w *Watcher) runSync(ctx context.Context) {
	log.Debug().Str("root", w.root).Msg("sync pass")
	if err := w.sync(ctx, w.root); err != nil {
		log.Error().Err(err).Str("root", w.root).Msg("sync pass failed")
	}
}

func addDirs(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("watch add failed")
			}
		}
		return nil
	})
}
