package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fastygo/storefront-session/pkg/clock"
)

func TestParseSignal(t *testing.T) {
	for _, s := range Signals {
		got, ok := ParseSignal(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	got, ok := ParseSignal("mousedown")
	assert.True(t, ok)
	assert.Equal(t, PointerDown, got)

	_, ok = ParseSignal("mousemove")
	assert.False(t, ok)
}

func TestTracker_RecordsActivity(t *testing.T) {
	clk := clock.AtMillis(1000)
	hub := NewHub()
	tracker := NewTracker(hub, clk)

	calls := 0
	tracker.Start(func() { calls++ })
	tracker.Start(func() { calls += 100 })
	assert.Equal(t, 1, hub.Listeners(), "restart keeps a single subscription")
	assert.Equal(t, time.UnixMilli(1000), tracker.LastActivityAt())

	clk.SetMillis(5000)
	hub.Emit(Scroll)
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.UnixMilli(5000), tracker.LastActivityAt())

	clk.SetMillis(6000)
	tracker.Touch()
	assert.Equal(t, time.UnixMilli(6000), tracker.LastActivityAt())

	tracker.Stop()
	tracker.Stop()
	assert.False(t, tracker.Running())
	assert.Equal(t, 0, hub.Listeners())

	hub.Emit(Click)
	assert.Equal(t, 1, calls)
}

func TestHub_FiltersBySignal(t *testing.T) {
	hub := NewHub()
	var got []Signal
	unsubscribe := hub.Subscribe([]Signal{KeyDown}, func(s Signal) { got = append(got, s) })

	hub.Emit(Click)
	hub.Emit(KeyDown)
	unsubscribe()
	unsubscribe()
	hub.Emit(KeyDown)

	assert.Equal(t, []Signal{KeyDown}, got)
	assert.Equal(t, 0, hub.Listeners())
}
