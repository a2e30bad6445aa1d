package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
)

func TestSyntheticSourceStaysWithinBounds(t *testing.T) {
	rnd := simclock.NewLockedRand(3)
	src := NewSyntheticSource(8, 16*1024*1024*1024, rnd)

	for i := 0; i < 20; i++ {
		info := src.Read()
		assert.Equal(t, 8, info.TotalGPUs)
		assert.GreaterOrEqual(t, info.AvailableGPUs, 0)
		assert.LessOrEqual(t, info.AvailableGPUs, info.TotalGPUs)
		assert.GreaterOrEqual(t, info.AvgUtilization, 0.0)
		assert.LessOrEqual(t, info.AvgUtilization, 100.0)
		assert.False(t, info.NVMLAvailable)
	}
}

func TestLiveSourceFallsBackWithoutPanicking(t *testing.T) {
	rnd := simclock.NewLockedRand(5)
	fallback := NewSyntheticSource(4, 8*1024*1024*1024, rnd)
	live := NewLiveSource(4, fallback, discardLogger())

	assert.NotPanics(t, func() {
		info := live.Read()
		assert.Equal(t, 4, info.TotalGPUs)
	})
}
