package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMonitor_Refresh(t *testing.T) {
	healthy := true
	mon := New([]Target{
		{Name: "durable_store", Pinger: pingFunc(func(context.Context) error { return nil })},
		{Name: "identity", Pinger: pingFunc(func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		})},
	}, time.Second, nil)

	assert.False(t, mon.IsOnline(), "unchecked monitor is not online")

	mon.Refresh()
	assert.True(t, mon.IsOnline())

	healthy = false
	mon.Refresh()
	status := mon.GetStatus()
	assert.False(t, status.Healthy())
	assert.Equal(t, map[string]bool{"durable_store": true, "identity": false}, status.Components)
}

func TestMonitor_StartStop(t *testing.T) {
	mon := New([]Target{{Name: "durable_store", Pinger: pingFunc(func(context.Context) error { return nil })}}, 10*time.Millisecond, nil)
	mon.Start()
	defer mon.Stop()

	require.Eventually(t, mon.IsOnline, time.Second, 5*time.Millisecond)
	mon.Stop()
	mon.Stop()
}
