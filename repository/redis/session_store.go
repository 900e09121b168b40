package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/repository"
)

// SessionStore keeps the durable session slot of one profile in a Redis hash and
// announces every change on a pub/sub channel so other clients can react.
type SessionStore struct {
	client  *redislib.Client
	key     string
	channel string
	origin  string
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[*redislib.PubSub]struct{}
}

// NewSessionStore creates a Redis-backed durable store for the given profile.
func NewSessionStore(client *redislib.Client, prefix, profile string, logger *zap.Logger) *SessionStore {
	if prefix == "" {
		prefix = "storefront:session:"
	}
	if profile == "" {
		profile = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:  client,
		key:     fmt.Sprintf("%s%s", prefix, profile),
		channel: fmt.Sprintf("%s%s:changes", prefix, profile),
		origin:  uuid.NewString(),
		logger:  logger,
		subs:    make(map[*redislib.PubSub]struct{}),
	}
}

// Origin identifies changes made through this store.
func (r *SessionStore) Origin() string {
	return r.origin
}

// maxCommitAttempts bounds the optimistic retries when another client writes the
// hash between the diff read and EXEC.
const maxCommitAttempts = 10

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redislib.SliceCmd
}

func (r *SessionStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	return r.read(ctx, r.client, keys)
}

func (r *SessionStore) read(ctx context.Context, reader hashReader, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := reader.HMGet(ctx, r.key, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if s, ok := value.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *SessionStore) Commit(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	fields := make(map[string]interface{}, len(values))
	for key, value := range values {
		keys = append(keys, key)
		fields[key] = value
	}

	return r.watched(ctx, keys, values, func(pipe redislib.Pipeliner) {
		pipe.HSet(ctx, r.key, fields)
	})
}

func (r *SessionStore) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.watched(ctx, keys, map[string]string{}, func(pipe redislib.Pipeliner) {
		pipe.HDel(ctx, r.key, keys...)
	})
}

// watched reads the current values under WATCH, then applies write and publishes
// the resulting diff in one MULTI/EXEC so the announced changes match what was
// written.
func (r *SessionStore) watched(ctx context.Context, keys []string, after map[string]string, write func(redislib.Pipeliner)) error {
	txf := func(tx *redislib.Tx) error {
		before, err := r.read(ctx, tx, keys)
		if err != nil {
			return err
		}
		changes := repository.Diff(keys, before, after, r.origin)

		_, err = tx.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			write(pipe)
			return r.publish(ctx, pipe, changes)
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		err = r.client.Watch(ctx, txf, r.key)
		if !errors.Is(err, redislib.TxFailedErr) {
			return err
		}
		r.logger.Debug("session hash changed during commit, retrying", zap.Int("attempt", attempt+1))
	}
	return err
}

func (r *SessionStore) publish(ctx context.Context, pipe redislib.Pipeliner, changes []repository.Change) error {
	for _, change := range changes {
		payload, err := repository.EncodeChange(change)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, r.channel, payload)
	}
	return nil
}

// Subscribe listens on the profile's change channel until unsubscribed or ctx ends.
func (r *SessionStore) Subscribe(ctx context.Context, handler func(repository.Change)) (func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	r.mu.Lock()
	r.subs[pubsub] = struct{}{}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			change, err := repository.DecodeChange(msg.Payload)
			if err != nil {
				r.logger.Warn("invalid session change payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if change.Origin == r.origin {
				continue
			}
			handler(change)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, pubsub)
			r.mu.Unlock()
			_ = pubsub.Close()
			<-done
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return stop, nil
}

func (r *SessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close ends every open subscription. The client itself is owned by the caller.
func (r *SessionStore) Close() error {
	r.mu.Lock()
	subs := make([]*redislib.PubSub, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	clear(r.subs)
	r.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			r.logger.Warn("closing session subscription failed", zap.Error(err))
		}
	}
	return nil
}

var _ repository.DurableStore = (*SessionStore)(nil)
