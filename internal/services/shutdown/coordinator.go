// Package shutdown runs component teardown hooks when the process stops.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Func describes a graceful shutdown callback.
type Func func(ctx context.Context) error

type hook struct {
	name string
	fn   Func
}

// Coordinator collects shutdown hooks and reacts to OS signals.
type Coordinator struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []hook
	done  bool
}

// New creates a coordinator with the desired overall timeout.
func New(timeout time.Duration, logger *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown hook. Hooks run in reverse registration order.
func (c *Coordinator) Register(name string, fn Func) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
}

// Shutdown executes all registered hooks once, respecting the configured timeout.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true

	var result error
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		if err := h.fn(ctx); err != nil {
			c.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		c.logger.Info("component stopped", zap.String("component", h.name))
	}
	return result
}

// Listen invokes cancel when SIGTERM or SIGINT arrives.
func (c *Coordinator) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		sig := <-sigCh
		c.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()
}
