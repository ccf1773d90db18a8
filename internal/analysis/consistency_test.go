package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistency_LapTimes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	cases := []struct {
		name     string
		times    []float64
		computed bool
		std      float64
		signal   Signal
	}{
		{"elite", []float64{60, 60.5, 61}, true, 0.5, SignalElite},
		{"steady", []float64{60, 61.5, 63}, true, 1.5, SignalNone},
		{"oscillation", []float64{60, 63, 66}, true, 3, SignalOscillation},
		{"too few laps", []float64{60, 70}, false, 0, SignalNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Consistency(tc.times, nil)
			assert.Equal(t, tc.computed, got.Computed)
			assert.InDelta(t, tc.std, got.LapTimeStdDev, 1e-9)
			assert.Equal(t, tc.signal, got.Signal)
			assert.Equal(t, len(tc.times), got.LapCount)
		})
	}
}

func TestConsistency_Corners(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	got := e.Consistency(nil, map[int][]float64{
		2: {40, 45, 50},
		1: {50, 50, 50},
		3: {44},
	})
	require.Len(t, got.Corners, 3)

	assert.Equal(t, CornerConsistency{CornerID: 1, StdDev: 0, Samples: 3}, got.Corners[0])

	c2 := got.Corners[1]
	assert.Equal(t, 2, c2.CornerID)
	assert.InDelta(t, math.Sqrt(50.0/3), c2.StdDev, 1e-9, "population standard deviation")
	assert.True(t, c2.Inconsistent)

	assert.Equal(t, CornerConsistency{CornerID: 3, Samples: 1}, got.Corners[2])
}
