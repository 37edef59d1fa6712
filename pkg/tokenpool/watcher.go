package tokenpool

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the pool when the persisted credential document is edited
// out-of-band (operators commonly manage the token file directly).
//
// The directory is watched rather than the file itself so that editors that
// replace-by-rename keep triggering events.
type Watcher struct {
	store  *Store
	pool   *Pool
	logger *zap.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates and starts a Watcher for the store's document.
func NewWatcher(store *Store, pool *Pool, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(store.Path())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		store:  store,
		pool:   pool,
		logger: logger,
		fsw:    fsw,
		done:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	target := filepath.Clean(w.store.Path())

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("token file watcher error", zap.Error(err))
		}
	}
}

// reload applies the on-disk document to the pool. Reloads that change
// nothing are skipped, which also breaks the feedback cycle with the pool's
// own persistence writes.
func (w *Watcher) reload() {
	doc, err := w.store.Load()
	if err != nil {
		w.logger.Warn("reloading token document failed", zap.Error(err))
		return
	}

	if slices.Equal(doc.Tokens, w.pool.Tokens()) {
		return
	}

	w.logger.Info("token document changed on disk, updating pool",
		zap.Int("tokens", len(doc.Tokens)),
	)
	w.pool.Update(doc.Tokens)
}
