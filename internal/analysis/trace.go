package analysis

import (
	"github.com/kartbox/telemetry/internal/telemetry"
)

// LapTrace is one lap's moving samples with their cumulative distance.
type LapTrace struct {
	ID       int
	Mode     telemetry.Mode
	Samples  []telemetry.Sample
	Distance []float64
}

// Trace computes the distance axis for a lap's samples.
func (e *Engine) Trace(lap telemetry.LapSamples) LapTrace {
	return LapTrace{
		ID:       lap.ID,
		Mode:     lap.Mode,
		Samples:  lap.Samples,
		Distance: CumulativeDistance(lap.Positions(), e.params.DistanceModel, e.params.DegreesToMeters),
	}
}

// Len returns the number of samples.
func (t LapTrace) Len() int { return len(t.Samples) }

// Positions returns the GPS fixes in order.
func (t LapTrace) Positions() []telemetry.Position {
	out := make([]telemetry.Position, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Position()
	}
	return out
}

// Speeds returns the sample speeds in order.
func (t LapTrace) Speeds() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Speed
	}
	return out
}

// Elapsed returns seconds since the lap's earliest timestamp.
func (t LapTrace) Elapsed() []float64 {
	out := make([]float64, len(t.Samples))
	if len(t.Samples) == 0 {
		return out
	}
	min := t.Samples[0].TimestampMS
	for _, s := range t.Samples {
		if s.TimestampMS < min {
			min = s.TimestampMS
		}
	}
	for i, s := range t.Samples {
		out[i] = float64(s.TimestampMS-min) / 1000
	}
	return out
}

// MaxDistance returns the final cumulative distance.
func (t LapTrace) MaxDistance() float64 {
	if len(t.Distance) == 0 {
		return 0
	}
	return t.Distance[len(t.Distance)-1]
}

// MaxSpeed returns the lap's top speed.
func (t LapTrace) MaxSpeed() float64 {
	var max float64
	for _, s := range t.Samples {
		if s.Speed > max {
			max = s.Speed
		}
	}
	return max
}
