package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateMbps(t *testing.T) {
	// 5 MB over 5 seconds is 8 Mbps.
	assert.InDelta(t, 8.0, RateMbps(5_000_000, 5), 0.001)
	assert.InDelta(t, 0.0, RateMbps(0, 5), 0.001)
	assert.Equal(t, 0.0, RateMbps(1000, 0))
	assert.Equal(t, 0.0, RateMbps(1000, -1))
}

func TestSeedProvidesMemoryBeforeFirstSample(t *testing.T) {
	c := NewCollector(DefaultInterval, nil, nil)

	s := c.Last()
	assert.Zero(t, s.CPU, "CPU needs a full window to measure")
	assert.Greater(t, s.MemTotalGB, 0.0)
	assert.NotNil(t, s.NICs)
}

func TestLastIsStable(t *testing.T) {
	c := NewCollector(DefaultInterval, nil, nil)
	first := c.Last()
	second := c.Last()
	assert.Equal(t, first, second)
}
