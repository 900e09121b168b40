package postgres

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/repository"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying session changes.
const NotifyChannel = "session_changes"

// SessionStore keeps the durable session slot of one profile in the session_entries
// table. Changes are announced with pg_notify inside the writing transaction, so they
// are delivered exactly when the write becomes visible.
type SessionStore struct {
	pool    *pgxpool.Pool
	profile string
	origin  string
	logger  *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel map[*context.CancelFunc]struct{}
}

// NewSessionStore instantiates a Postgres-backed durable store.
func NewSessionStore(pool *pgxpool.Pool, profile string, logger *zap.Logger) *SessionStore {
	if profile == "" {
		profile = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		pool:    pool,
		profile: profile,
		origin:  uuid.NewString(),
		logger:  logger,
		cancel:  make(map[*context.CancelFunc]struct{}),
	}
}

// Origin identifies changes made through this store.
func (r *SessionStore) Origin() string {
	return r.origin
}

func (r *SessionStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	const query = `
		SELECT key, value
		FROM session_entries
		WHERE profile = $1 AND key = ANY($2)
	`
	rows, err := r.pool.Query(ctx, query, r.profile, keys)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *SessionStore) Commit(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		before, err := r.lock(ctx, tx, keys)
		if err != nil {
			return err
		}

		const upsert = `
		INSERT INTO session_entries (profile, key, value, origin, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (profile, key) DO UPDATE
		SET value = EXCLUDED.value,
			origin = EXCLUDED.origin,
			updated_at = NOW()
		`
		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(upsert, r.profile, key, value, r.origin)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		return r.notify(ctx, tx, repository.Diff(keys, before, values, r.origin))
	})
}

func (r *SessionStore) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
		DELETE FROM session_entries
		WHERE profile = $1 AND key = ANY($2)
		RETURNING key, value
		`
		rows, err := tx.Query(ctx, query, r.profile, keys)
		if err != nil {
			return err
		}
		before, err := collect(rows)
		if err != nil {
			return err
		}
		return r.notify(ctx, tx, repository.Diff(keys, before, map[string]string{}, r.origin))
	})
}

func (r *SessionStore) lock(ctx context.Context, tx pgx.Tx, keys []string) (map[string]string, error) {
	const query = `
		SELECT key, value
		FROM session_entries
		WHERE profile = $1 AND key = ANY($2)
		FOR UPDATE
	`
	rows, err := tx.Query(ctx, query, r.profile, keys)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *SessionStore) notify(ctx context.Context, tx pgx.Tx, changes []repository.Change) error {
	for _, change := range changes {
		change.Profile = r.profile
		payload, err := repository.EncodeChange(change)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, payload); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe holds a dedicated connection listening on NotifyChannel.
func (r *SessionStore) Subscribe(ctx context.Context, handler func(repository.Change)) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[&cancel] = struct{}{}
	r.mu.Unlock()

	done := make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		defer conn.Release()

		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Warn("session change listener stopped", zap.Error(err))
				}
				// The connection may be mid-wait; do not hand it back to the pool in that state.
				_ = conn.Conn().Close(context.Background())
				return
			}
			change, err := repository.DecodeChange(n.Payload)
			if err != nil {
				r.logger.Warn("invalid session change payload", zap.Error(err))
				continue
			}
			if change.Profile != r.profile || change.Origin == r.origin {
				continue
			}
			handler(change)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.cancel, &cancel)
			r.mu.Unlock()
			cancel()
			<-done
		})
	}, nil
}

func (r *SessionStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close stops all listeners. The pool is owned by the caller.
func (r *SessionStore) Close() error {
	r.mu.Lock()
	for cancel := range r.cancel {
		(*cancel)()
	}
	clear(r.cancel)
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

func collect(rows pgx.Rows) (map[string]string, error) {
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

var _ repository.DurableStore = (*SessionStore)(nil)
