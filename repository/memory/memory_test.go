package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/storefront-session/repository"
)

func TestStore_CommitAndRemove(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Commit(ctx, map[string]string{"a": "1", "b": "2"}))
	got, err := s.Get(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	require.NoError(t, s.Remove(ctx, []string{"a", "c"}))
	assert.Equal(t, 1, s.Len())
}

func TestShared_DeliversToOtherHandlesOnly(t *testing.T) {
	ctx := context.Background()
	shared := NewShared()
	a, b := shared.Open(), shared.Open()

	var seenA, seenB []repository.Change
	unsubA, err := a.Subscribe(ctx, func(c repository.Change) { seenA = append(seenA, c) })
	require.NoError(t, err)
	unsubB, err := b.Subscribe(ctx, func(c repository.Change) { seenB = append(seenB, c) })
	require.NoError(t, err)

	require.NoError(t, a.Commit(ctx, map[string]string{"auth_token": "t"}))
	require.NoError(t, a.Commit(ctx, map[string]string{"auth_token": "t"}))

	assert.Empty(t, seenA)
	require.Len(t, seenB, 1, "unchanged values produce no event")
	assert.Equal(t, repository.Change{Key: "auth_token", NewValue: "t", Origin: a.Origin()}, seenB[0])

	got, err := b.Get(ctx, []string{"auth_token"})
	require.NoError(t, err)
	assert.Equal(t, "t", got["auth_token"])

	require.NoError(t, b.Remove(ctx, []string{"auth_token", "missing"}))
	require.Len(t, seenA, 1)
	assert.True(t, seenA[0].Removed())

	unsubA()
	unsubA()
	unsubB()
	assert.Equal(t, 0, shared.Subscribers())
}
