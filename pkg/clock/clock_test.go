package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_FiresInOrder(t *testing.T) {
	clk := AtMillis(0)
	var fired []string
	var at []int64

	cancelFast := clk.Schedule(time.Second, func() {
		fired = append(fired, "fast")
		at = append(at, clk.Now().UnixMilli())
	})
	clk.Schedule(3*time.Second, func() {
		fired = append(fired, "slow")
		at = append(at, clk.Now().UnixMilli())
	})
	assert.Equal(t, 2, clk.Pending())

	clk.Advance(3 * time.Second)
	assert.Equal(t, []string{"fast", "fast", "fast", "slow"}, fired)
	assert.Equal(t, []int64{1000, 2000, 3000, 3000}, at)
	assert.Equal(t, int64(3000), clk.Now().UnixMilli())

	cancelFast()
	cancelFast()
	clk.Advance(3 * time.Second)
	assert.Equal(t, "slow", fired[len(fired)-1])
	assert.Len(t, fired, 5)
}

func TestManual_CancelFromCallback(t *testing.T) {
	clk := AtMillis(0)
	count := 0
	var cancel func()
	cancel = clk.Schedule(time.Minute, func() {
		count++
		cancel()
	})

	clk.Advance(time.Hour)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, clk.Pending())
}

func TestManual_SetBackwardsFiresNothing(t *testing.T) {
	clk := AtMillis(10000)
	fired := false
	clk.Schedule(time.Second, func() { fired = true })

	clk.SetMillis(5000)
	assert.False(t, fired)
	assert.Equal(t, int64(5000), clk.Now().UnixMilli())
}

func TestSystem(t *testing.T) {
	assert.WithinDuration(t, time.Now(), System().Now(), time.Second)
}
