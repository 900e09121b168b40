package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs repeating callbacks on a robfig/cron scheduler. Each Schedule call adds
// an "@every" entry; the returned cancel function removes exactly that entry.
type Cron struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewCron creates a scheduler. Entries do not fire until Start is called.
func NewCron(logger *zap.Logger) *Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cron{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// Schedule runs fn every interval (rounded down to whole seconds, minimum one second).
func (c *Cron) Schedule(interval time.Duration, fn func()) func() {
	seconds := int(interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	id, err := c.cron.AddFunc(spec, fn)
	if err != nil {
		c.logger.Error("failed to schedule job", zap.String("spec", spec), zap.Error(err))
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.cron.Remove(id) })
	}
}

// Entries returns the number of scheduled jobs.
func (c *Cron) Entries() int {
	return len(c.cron.Entries())
}

// Start launches the cron scheduler.
func (c *Cron) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.cron.Start()
	c.logger.Info("scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (c *Cron) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	<-c.cron.Stop().Done()
	c.logger.Info("scheduler stopped")
}
