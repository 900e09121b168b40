package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCron_ScheduleAndCancel(t *testing.T) {
	c := NewCron(nil)
	c.Start()
	defer c.Stop()

	var runs atomic.Int32
	cancel := c.Schedule(500*time.Millisecond, func() { runs.Add(1) })
	assert.Equal(t, 1, c.Entries())

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	cancel()
	assert.Equal(t, 0, c.Entries())
}

func TestCron_StopIsIdempotent(t *testing.T) {
	c := NewCron(nil)
	c.Stop()
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}
