// Package activity records when the user last interacted with the client.
package activity

import (
	"sync"
	"time"

	"github.com/fastygo/storefront-session/pkg/clock"
)

// Signal is a kind of user interaction.
type Signal string

const (
	PointerDown Signal = "pointerdown"
	KeyDown     Signal = "keydown"
	Scroll      Signal = "scroll"
	TouchStart  Signal = "touchstart"
	Click       Signal = "click"
)

// Signals is the fixed set the tracker listens to.
var Signals = []Signal{PointerDown, KeyDown, Scroll, TouchStart, Click}

// ParseSignal maps a raw name onto a known signal.
func ParseSignal(raw string) (Signal, bool) {
	for _, s := range Signals {
		if string(s) == raw {
			return s, true
		}
	}
	// Older UI builds report mouse presses.
	if raw == "mousedown" {
		return PointerDown, true
	}
	return "", false
}

// Port delivers interaction signals from the platform.
type Port interface {
	Subscribe(signals []Signal, handler func(Signal)) (unsubscribe func())
}

// Tracker timestamps the most recent signal and forwards each one to a callback.
type Tracker struct {
	port  Port
	clock clock.Clock

	mu          sync.Mutex
	last        time.Time
	unsubscribe func()
}

// NewTracker builds a tracker over the given port.
func NewTracker(port Port, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	return &Tracker{port: port, clock: clk}
}

// Start subscribes to the signal set and resets the activity timestamp to now.
// Starting a running tracker only resets the timestamp.
func (t *Tracker) Start(onActivity func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = t.clock.Now()
	if t.unsubscribe != nil || t.port == nil {
		return
	}
	t.unsubscribe = t.port.Subscribe(Signals, func(Signal) {
		t.mu.Lock()
		t.last = t.clock.Now()
		t.mu.Unlock()
		if onActivity != nil {
			onActivity()
		}
	})
}

// Touch records activity that did not arrive through the port.
func (t *Tracker) Touch() {
	t.mu.Lock()
	t.last = t.clock.Now()
	t.mu.Unlock()
}

// Stop releases the port subscription. It is safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Running reports whether the tracker holds a subscription.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribe != nil
}

// LastActivityAt returns the time of the most recent signal or Start.
func (t *Tracker) LastActivityAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
