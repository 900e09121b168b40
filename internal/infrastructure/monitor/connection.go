package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency that can answer a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Target names a dependency to probe.
type Target struct {
	Name    string
	Pinger  Pinger
	Timeout time.Duration
}

type Monitor struct {
	targets []Target

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(targets []Target, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		targets:  targets,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	return m.GetStatus().Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	components := make(map[string]bool, len(m.status.Components))
	for k, v := range m.status.Components {
		components[k] = v
	}
	return Status{Components: components, LastCheck: m.status.LastCheck}
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh probes every target once.
func (m *Monitor) Refresh() {
	status := Status{Components: make(map[string]bool, len(m.targets))}
	for _, target := range m.targets {
		status.Components[target.Name] = m.check(target)
	}
	status.LastCheck = time.Now()

	m.mu.Lock()
	previous := m.status.Components
	m.status = status
	m.mu.Unlock()

	for name, ok := range status.Components {
		if was, seen := previous[name]; seen && was != ok {
			m.logger.Info("dependency status changed", zap.String("component", name), zap.Bool("online", ok))
		}
	}
}

func (m *Monitor) check(target Target) bool {
	if target.Pinger == nil {
		return false
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := target.Pinger.Ping(ctx); err != nil {
		m.logger.Debug("dependency check failed", zap.String("component", target.Name), zap.Error(err))
		return false
	}
	return true
}
