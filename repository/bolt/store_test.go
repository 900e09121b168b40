package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront-session/repository"
)

func openPair(t *testing.T) (*Store, *Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile", "session.db")
	a, err := Open(path, Options{})
	require.NoError(t, err)
	b, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestStore_CommitGetRemove(t *testing.T) {
	ctx := context.Background()
	a, b := openPair(t)

	require.NoError(t, a.Commit(ctx, map[string]string{"auth_token": "tok", "remember_me": "true"}))

	got, err := b.Get(ctx, []string{"auth_token", "remember_me", "session_id", originKey})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"auth_token": "tok", "remember_me": "true"}, got)

	require.NoError(t, b.Remove(ctx, []string{"auth_token", "remember_me", "missing"}))
	got, err = a.Get(ctx, []string{"auth_token"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, a.Ping(ctx))
}

type collector struct {
	mu      sync.Mutex
	changes []repository.Change
}

func (c *collector) add(change repository.Change) {
	c.mu.Lock()
	c.changes = append(c.changes, change)
	c.mu.Unlock()
}

func (c *collector) snapshot() []repository.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]repository.Change(nil), c.changes...)
}

func TestStore_SubscribeSeesOtherHandles(t *testing.T) {
	ctx := context.Background()
	a, b := openPair(t)

	var fromA, fromB collector
	unsubA, err := a.Subscribe(ctx, fromA.add)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := b.Subscribe(ctx, fromB.add)
	require.NoError(t, err)
	defer unsubB()

	require.NoError(t, a.Commit(ctx, map[string]string{"auth_token": "tok"}))

	require.Eventually(t, func() bool {
		for _, c := range fromB.snapshot() {
			if c.Key == "auth_token" && c.NewValue == "tok" && c.Origin == a.Origin() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, fromA.snapshot(), "own writes are not echoed")

	require.NoError(t, a.Remove(ctx, []string{"auth_token"}))
	require.Eventually(t, func() bool {
		for _, c := range fromB.snapshot() {
			if c.Key == "auth_token" && c.Removed() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_CloseStopsWatchers(t *testing.T) {
	a, _ := openPair(t)
	unsubscribe, err := a.Subscribe(context.Background(), func(repository.Change) {})
	require.NoError(t, err)

	require.NoError(t, a.Close())
	unsubscribe()

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Empty(t, a.watchers)
}

func TestUnionKeys(t *testing.T) {
	keys := unionKeys(map[string]string{"b": "1", "a": "1"}, map[string]string{"c": "1", "a": "2"})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
