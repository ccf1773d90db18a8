package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	t.Parallel()

	ramp := make([]float64, 40)
	wrapped := make([]float64, len(ramp))
	for i := range ramp {
		ramp[i] = 0.5 * float64(i)
		wrapped[i] = floorMod(ramp[i]+math.Pi, 2*math.Pi) - math.Pi
	}
	got := Unwrap(wrapped)
	for i := range ramp {
		assert.InDelta(t, ramp[i], got[i], 1e-9, "index %d", i)
	}

	// A falling ramp unwraps downwards.
	got = Unwrap([]float64{math.Pi, -math.Pi / 2})
	assert.InDelta(t, 3*math.Pi/2, got[1], 1e-12)

	assert.Empty(t, Unwrap(nil))
}

func TestSavGol_PreservesCubic(t *testing.T) {
	t.Parallel()

	x := make([]float64, 60)
	for i := range x {
		f := float64(i)
		x[i] = 0.001*f*f*f - 0.02*f*f + f + 3
	}
	got, err := SavGol(x, 25, 3)
	require.NoError(t, err)
	require.Len(t, got, len(x))
	for i := range x {
		assert.InDelta(t, x[i], got[i], 1e-6, "index %d", i)
	}
}

func TestSavGol_Smooths(t *testing.T) {
	t.Parallel()

	x := make([]float64, 51)
	for i := range x {
		if i%2 == 0 {
			x[i] = 1
		} else {
			x[i] = -1
		}
	}
	got, err := SavGol(x, 25, 3)
	require.NoError(t, err)
	for i := 12; i < 39; i++ {
		assert.Less(t, math.Abs(got[i]), 0.5, "index %d", i)
	}
}

func TestSavGol_Errors(t *testing.T) {
	t.Parallel()

	_, err := SavGol(make([]float64, 30), 24, 3)
	assert.Error(t, err)
	_, err = SavGol(make([]float64, 30), 5, 5)
	assert.Error(t, err)
	_, err = SavGol(make([]float64, 10), 25, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func spikes(n int, at map[int]float64) []float64 {
	x := make([]float64, n)
	for i, v := range at {
		x[i] = v
	}
	return x
}

func TestFindPeaks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		x        []float64
		height   float64
		distance int
		want     []int
	}{
		{"simple", []float64{0, 1, 0, 2, 0}, 0, 1, []int{1, 3}},
		{"odd plateau", []float64{0, 1, 1, 1, 0}, 0, 1, []int{2}},
		{"even plateau rounds down", []float64{0, 1, 1, 0}, 0, 1, []int{1}},
		{"edges are never peaks", []float64{3, 1, 2}, 0, 1, nil},
		{"plateau running to the end", []float64{0, 1, 1}, 0, 1, nil},
		{"height filter", []float64{0, 0.05, 0, 0.5, 0}, 0.1, 1, []int{3}},
		{"distance keeps higher", spikes(40, map[int]float64{10: 1, 20: 2}), 0.1, 30, []int{20}},
		{"distance tie keeps earlier", spikes(40, map[int]float64{10: 1, 20: 1}), 0.1, 30, []int{10}},
		{"far enough apart", spikes(80, map[int]float64{10: 1, 45: 2}), 0.1, 30, []int{10, 45}},
		{"chain suppressed by highest", spikes(80, map[int]float64{10: 1, 30: 3, 50: 1}), 0.1, 25, []int{30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindPeaks(tc.x, tc.height, tc.distance)
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
