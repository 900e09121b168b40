package bolt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/repository"
)

// originKey records which handle made the last change; it is never returned by Get.
const originKey = "__origin"

// Store persists the durable session slot in a BoltDB file shared by every client
// process of the same profile. The file is opened per operation so that several
// processes can take turns on the file lock.
type Store struct {
	path    string
	bucket  []byte
	origin  string
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	closed   bool
}

// Options tunes a Store.
type Options struct {
	Bucket      string
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// Open prepares the BoltDB file and ensures the bucket exists.
func Open(path string, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		opts.Bucket = "session"
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		path:     filepath.Clean(path),
		bucket:   []byte(opts.Bucket),
		origin:   uuid.NewString(),
		timeout:  opts.LockTimeout,
		logger:   opts.Logger,
		watchers: make(map[*watcher]struct{}),
	}

	if err := s.update(func(*bolt.Bucket) error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Origin identifies changes made through this store.
func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) Get(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	err := s.view(func(b *bolt.Bucket) error {
		for _, key := range keys {
			if key == originKey {
				continue
			}
			if v := b.Get([]byte(key)); v != nil {
				out[key] = string(v)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) Commit(_ context.Context, values map[string]string) error {
	return s.update(func(b *bolt.Bucket) error {
		for key, value := range values {
			if err := b.Put([]byte(key), []byte(value)); err != nil {
				return err
			}
		}
		return b.Put([]byte(originKey), []byte(s.origin))
	})
}

func (s *Store) Remove(_ context.Context, keys []string) error {
	return s.update(func(b *bolt.Bucket) error {
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return b.Put([]byte(originKey), []byte(s.origin))
	})
}

func (s *Store) Ping(context.Context) error {
	return s.view(func(*bolt.Bucket) error { return nil })
}

// Close stops every change watcher opened through this store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*watcher, 0, len(s.watchers))
	for w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	var result error
	for _, w := range watchers {
		result = errors.Join(result, w.stop())
	}
	return result
}

// snapshot returns every session key in the bucket plus the origin of the last change.
func (s *Store) snapshot() (map[string]string, string, error) {
	values := make(map[string]string)
	var origin string
	err := s.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if string(k) == originKey {
				origin = string(v)
				return nil
			}
			values[string(k)] = string(v)
			return nil
		})
	})
	return values, origin, err
}

func (s *Store) open() (*bolt.DB, error) {
	return bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout})
}

func (s *Store) view(fn func(*bolt.Bucket) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (s *Store) update(fn func(*bolt.Bucket) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

var _ repository.DurableStore = (*Store)(nil)
