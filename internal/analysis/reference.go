package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// linear is a piecewise-linear interpolant that extends its end segments
// beyond the fitted range.
type linear struct {
	pl     interp.PiecewiseLinear
	xs, ys []float64
}

// newLinear fits ys over xs. xs must be non-decreasing; repeated x values
// keep their first sample. It returns ErrInsufficientData when fewer than two
// distinct x values remain.
func newLinear(xs, ys []float64) (*linear, error) {
	ux := make([]float64, 0, len(xs))
	uy := make([]float64, 0, len(ys))
	for i, x := range xs {
		if math.IsNaN(x) || math.IsNaN(ys[i]) {
			continue
		}
		if len(ux) > 0 && x <= ux[len(ux)-1] {
			continue
		}
		ux = append(ux, x)
		uy = append(uy, ys[i])
	}
	if len(ux) < 2 {
		return nil, fmt.Errorf("%d distinct distances: %w", len(ux), ErrInsufficientData)
	}
	l := &linear{xs: ux, ys: uy}
	if err := l.pl.Fit(ux, uy); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *linear) at(x float64) float64 {
	n := len(l.xs)
	switch {
	case x < l.xs[0]:
		slope := (l.ys[1] - l.ys[0]) / (l.xs[1] - l.xs[0])
		return l.ys[0] + slope*(x-l.xs[0])
	case x > l.xs[n-1]:
		slope := (l.ys[n-1] - l.ys[n-2]) / (l.xs[n-1] - l.xs[n-2])
		return l.ys[n-1] + slope*(x-l.xs[n-1])
	}
	return l.pl.Predict(x)
}

func (l *linear) maxX() float64 { return l.xs[len(l.xs)-1] }

// Reference is the distance-indexed model of the reference lap.
type Reference struct {
	LapID   int
	trace   LapTrace
	elapsed *linear
	speed   *linear
}

// NewReference builds elapsed-time and speed interpolants over the lap's
// distance axis. A lap whose distance never advances cannot be a reference.
func NewReference(lap LapTrace) (*Reference, error) {
	elapsed, err := newLinear(lap.Distance, lap.Elapsed())
	if err != nil {
		return nil, newError("reference", lap.ID, ReasonUndefinedReference,
			fmt.Errorf("%v: %w", err, ErrUndefinedReference))
	}
	speed, err := newLinear(lap.Distance, lap.Speeds())
	if err != nil {
		return nil, newError("reference", lap.ID, ReasonUndefinedReference,
			fmt.Errorf("%v: %w", err, ErrUndefinedReference))
	}
	return &Reference{LapID: lap.ID, trace: lap, elapsed: elapsed, speed: speed}, nil
}

// Trace returns the lap the reference was built from.
func (r *Reference) Trace() LapTrace { return r.trace }

// MaxDistance is the reference lap's length.
func (r *Reference) MaxDistance() float64 { return r.elapsed.maxX() }

// ElapsedAt returns the reference lap's elapsed seconds at distance d.
func (r *Reference) ElapsedAt(d float64) float64 { return r.elapsed.at(d) }

// SpeedAt returns the reference lap's speed at distance d.
func (r *Reference) SpeedAt(d float64) float64 { return r.speed.at(d) }

// DeltaTrace compares one lap against the reference on a shared distance
// grid. DeltaTime is positive where the lap is behind the reference.
type DeltaTrace struct {
	LapID          int       `json:"lap_id"`
	ReferenceLapID int       `json:"reference_lap_id"`
	Distance       []float64 `json:"distance"`
	DeltaTime      []float64 `json:"delta_time"`
	DeltaSpeed     []float64 `json:"delta_speed"`
	LapSpeed       []float64 `json:"lap_speed"`
	ReferenceSpeed []float64 `json:"reference_speed"`
}

// Final returns the time delta at the end of the grid.
func (d DeltaTrace) Final() float64 {
	if len(d.DeltaTime) == 0 {
		return 0
	}
	return d.DeltaTime[len(d.DeltaTime)-1]
}

// Delta samples the lap and the reference on gridPoints evenly spaced
// distances from 0 to the longer of the two laps.
func (r *Reference) Delta(lap LapTrace, gridPoints int) (DeltaTrace, error) {
	if gridPoints < 2 {
		return DeltaTrace{}, newError("delta", lap.ID, ReasonInsufficientData,
			fmt.Errorf("grid of %d points: %w", gridPoints, ErrInsufficientData))
	}
	elapsed, err := newLinear(lap.Distance, lap.Elapsed())
	if err != nil {
		return DeltaTrace{}, newError("delta", lap.ID, ReasonInsufficientData, err)
	}
	speed, err := newLinear(lap.Distance, lap.Speeds())
	if err != nil {
		return DeltaTrace{}, newError("delta", lap.ID, ReasonInsufficientData, err)
	}

	grid := floats.Span(make([]float64, gridPoints), 0, math.Max(r.MaxDistance(), elapsed.maxX()))
	out := DeltaTrace{
		LapID:          lap.ID,
		ReferenceLapID: r.LapID,
		Distance:       grid,
		DeltaTime:      make([]float64, gridPoints),
		DeltaSpeed:     make([]float64, gridPoints),
		LapSpeed:       make([]float64, gridPoints),
		ReferenceSpeed: make([]float64, gridPoints),
	}
	for i, d := range grid {
		out.LapSpeed[i] = speed.at(d)
		out.ReferenceSpeed[i] = r.SpeedAt(d)
		out.DeltaSpeed[i] = out.LapSpeed[i] - out.ReferenceSpeed[i]
		out.DeltaTime[i] = elapsed.at(d) - r.ElapsedAt(d)
	}
	return out, nil
}
