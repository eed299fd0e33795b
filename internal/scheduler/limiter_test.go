package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchLimiterAllowsWithinBurst(t *testing.T) {
	l := NewDispatchLimiter(1, 3)
	for i := 0; i < 3; i++ {
		allowed, _ := l.Reserve("w1")
		assert.True(t, allowed)
	}
	allowed, delay := l.Reserve("w1")
	assert.False(t, allowed)
	assert.True(t, delay > 0)
}

func TestDispatchLimiterIsPerWorker(t *testing.T) {
	l := NewDispatchLimiter(1, 1)
	allowed, _ := l.Reserve("w1")
	assert.True(t, allowed)

	allowed, _ = l.Reserve("w2")
	assert.True(t, allowed, "a saturated worker must not throttle dispatch to a different worker")
}
