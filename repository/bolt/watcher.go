package bolt

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/repository"
)

type watcher struct {
	store   *Store
	fs      *fsnotify.Watcher
	handler func(repository.Change)
	cancel  context.CancelFunc
	done    chan struct{}

	last     map[string]string
	stopOnce sync.Once
	stopErr  error
}

// Subscribe watches the BoltDB file and reports key changes made by other handles.
// BoltDB has no notification mechanism of its own: every write to the file triggers a
// re-read of the bucket, which is diffed against the previous view.
func (s *Store) Subscribe(ctx context.Context, handler func(repository.Change)) (func(), error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		fsw.Close()
		return nil, err
	}

	last, _, err := s.snapshot()
	if err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		store:   s,
		fs:      fsw,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		last:    last,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		fsw.Close()
		return func() {}, nil
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go w.loop(ctx)

	return func() { _ = w.stop() }, nil
}

func (w *watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.store.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.refresh()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("session file watch error", zap.Error(err))
		}
	}
}

func (w *watcher) refresh() {
	current, origin, err := w.store.snapshot()
	if err != nil {
		w.store.logger.Warn("session file re-read failed", zap.Error(err))
		return
	}
	previous := w.last
	w.last = current
	if origin == w.store.origin {
		return
	}

	keys := unionKeys(previous, current)
	for _, change := range repository.Diff(keys, previous, current, origin) {
		w.handler(change)
	}
}

func (w *watcher) stop() error {
	w.stopOnce.Do(func() {
		w.cancel()
		w.stopErr = w.fs.Close()
		<-w.done

		w.store.mu.Lock()
		delete(w.store.watchers, w)
		w.store.mu.Unlock()
	})
	return w.stopErr
}

func unionKeys(a, b map[string]string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]string{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
