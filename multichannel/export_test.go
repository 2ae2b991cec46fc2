package multichannel

import (
	"testing"
	"time"
)

func SetNow(t *testing.T, f func() time.Time) {
	org := now
	now = f
	t.Cleanup(func() {
		now = org
	})
}

func SetRandFloat64(t *testing.T, f func() float64) {
	org := randFloat64
	randFloat64 = f
	t.Cleanup(func() {
		randFloat64 = org
	})
}

func SetRandIntN(t *testing.T, f func(int) int) {
	org := randIntN
	randIntN = f
	t.Cleanup(func() {
		randIntN = org
	})
}

func MarkFailed(c *ChannelInfo) ([]Request, bool) {
	drained, prev := c.markFailed()
	c.settleFailure()
	return drained, prev != ChannelStateFailed
}


func MarkDisconnectedIfIdle(c *ChannelInfo) bool {
	return c.markDisconnectedIfIdle()
}
