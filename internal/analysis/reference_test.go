package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartbox/telemetry/internal/testutil"
)

func TestDelta_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	dist := make([]float64, 11)
	refTS := make([]int64, 11)
	lapTS := make([]int64, 11)
	for i := range dist {
		dist[i] = float64(i) * 10
		refTS[i] = int64(i) * 1000
		lapTS[i] = int64(i) * 1150
	}
	ref, err := NewReference(manualTrace(1, dist, refTS, nil))
	require.NoError(t, err)

	d, err := ref.Delta(manualTrace(2, dist, lapTS, nil), 250)
	require.NoError(t, err)
	require.Len(t, d.Distance, 250)
	require.Len(t, d.DeltaTime, 250)
	assert.Equal(t, 0.0, d.Distance[0])
	assert.InDelta(t, 100.0, d.Distance[249], 1e-9)
	assert.Equal(t, 1, d.ReferenceLapID)

	for i := 1; i < len(d.DeltaTime); i++ {
		if d.DeltaTime[i] <= d.DeltaTime[i-1] {
			t.Fatalf("delta not strictly increasing at %d: %v <= %v", i, d.DeltaTime[i], d.DeltaTime[i-1])
		}
	}
	assert.InDelta(t, 1.5, d.Final(), 1e-9)
}

func TestDelta_SelfConsistency(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	samples, _ := testutil.SquareSession(testutil.LapSpec{ID: 1})
	lap := e.Trace(lapSamples(samples, 1))

	ref, err := NewReference(lap)
	require.NoError(t, err)
	d, err := ref.Delta(lap, e.Params().DeltaGridPoints)
	require.NoError(t, err)
	for i := range d.DeltaTime {
		assert.InDelta(t, 0, d.DeltaTime[i], 1e-9)
		assert.InDelta(t, 0, d.DeltaSpeed[i], 1e-9)
	}
}

func TestReference_Extrapolates(t *testing.T) {
	t.Parallel()

	ref, err := NewReference(linearTrace(1, 6, 10, 1000))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, ref.MaxDistance(), 1e-12)
	assert.InDelta(t, 6.0, ref.ElapsedAt(60), 1e-12)
	assert.InDelta(t, -1.0, ref.ElapsedAt(-10), 1e-12)
	assert.InDelta(t, 2.5, ref.ElapsedAt(25), 1e-12)

	// A longer lap stretches the grid past the reference.
	d, err := ref.Delta(linearTrace(2, 9, 10, 1000), 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20, 40, 60, 80}, d.Distance)
	for _, v := range d.DeltaTime {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestReference_RepeatedDistanceKeepsFirst(t *testing.T) {
	t.Parallel()

	ref, err := NewReference(manualTrace(1,
		[]float64{0, 10, 10, 20},
		[]int64{0, 1000, 1500, 2000},
		[]float64{30, 40, 99, 50}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ref.ElapsedAt(10), 1e-12)
	assert.InDelta(t, 1.5, ref.ElapsedAt(15), 1e-12)
	assert.InDelta(t, 40.0, ref.SpeedAt(10), 1e-12)
}

func TestReference_Undefined(t *testing.T) {
	t.Parallel()

	_, err := NewReference(manualTrace(1, []float64{0, 0, 0}, []int64{0, 100, 200}, nil))
	require.ErrorIs(t, err, ErrUndefinedReference)
	assert.Equal(t, ReasonUndefinedReference, ReasonOf(err))
}

func TestDelta_TargetWithoutVariation(t *testing.T) {
	t.Parallel()

	ref, err := NewReference(linearTrace(1, 6, 10, 1000))
	require.NoError(t, err)

	_, err = ref.Delta(manualTrace(2, []float64{5, 5, 5}, []int64{0, 100, 200}, nil), 250)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ref.Delta(linearTrace(3, 6, 10, 1000), 1)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
