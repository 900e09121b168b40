// Package clock provides wall-clock reads and a virtual clock for tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock reads the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the real wall clock.
func System() Clock {
	return systemClock{}
}

// Manual is a virtual clock that also schedules repeating callbacks.
// Time only moves through Set and Advance; due callbacks run synchronously
// on the goroutine that moves the clock, in due order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	entries map[int]*entry
}

type entry struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

// NewManual creates a virtual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, entries: make(map[int]*entry)}
}

// AtMillis creates a virtual clock at the given epoch milliseconds.
func AtMillis(ms int64) *Manual {
	return NewManual(time.UnixMilli(ms))
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Schedule runs fn every interval of virtual time until cancelled.
func (m *Manual) Schedule(interval time.Duration, fn func()) func() {
	if interval <= 0 {
		interval = time.Millisecond
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.entries[id] = &entry{id: id, interval: interval, next: m.now.Add(interval), fn: fn}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
	}
}

// Pending returns the number of live scheduled callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Advance moves the clock forward by d, firing due callbacks along the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.runUntil(target)
}

// Set moves the clock to t. Moving backwards fires nothing.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	if !t.After(m.now) {
		m.now = t
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.runUntil(t)
}

// SetMillis moves the clock to the given epoch milliseconds.
func (m *Manual) SetMillis(ms int64) {
	m.Set(time.UnixMilli(ms))
}

func (m *Manual) runUntil(target time.Time) {
	for {
		m.mu.Lock()
		due := m.nextDue(target)
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDue(target time.Time) *entry {
	var due []*entry
	for _, e := range m.entries {
		if !e.next.After(target) {
			due = append(due, e)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}
