package analysis

import (
	"fmt"
	"math"

	"github.com/kartbox/telemetry/internal/telemetry"
)

// CornerCandidate is one curvature peak found in one lap.
type CornerCandidate struct {
	LapID    int     `json:"lap_id"`
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	// Heading is the signed heading change (rad) across the curvature
	// window ending at the peak; positive turns left.
	Heading float64 `json:"heading"`
}

// Headings returns the unwrapped direction of travel of each step between
// consecutive points, atan2(dLat, dLon). Zero-length steps repeat the
// previous heading so a stalled GPS fix does not read as a turn.
func Headings(points []telemetry.Position) []float64 {
	if len(points) < 2 {
		return nil
	}
	raw := make([]float64, len(points)-1)
	valid := make([]bool, len(raw))
	first := -1
	for i := range raw {
		dLat := points[i+1].Lat - points[i].Lat
		dLon := points[i+1].Lon - points[i].Lon
		if dLat == 0 && dLon == 0 {
			continue
		}
		raw[i] = math.Atan2(dLat, dLon)
		valid[i] = true
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return Unwrap(raw)
	}
	prev := raw[first]
	for i := range raw {
		if valid[i] {
			prev = raw[i]
		} else {
			raw[i] = prev
		}
	}
	return Unwrap(raw)
}

// Curvature returns |h[i] - h[i-window]|, with the first window values 0.
func Curvature(headings []float64, window int) []float64 {
	out := make([]float64, len(headings))
	for i := window; i < len(headings); i++ {
		out[i] = math.Abs(headings[i] - headings[i-window])
	}
	return out
}

// CurvatureProfile returns the smoothed curvature of a lap, one value per
// step, and the unwrapped headings it was computed from.
func (e *Engine) CurvatureProfile(points []telemetry.Position) (curv, headings []float64, err error) {
	p := e.params
	if len(points) < p.CurvatureWindow+2 {
		return nil, nil, fmt.Errorf("curvature needs %d points, have %d: %w", p.CurvatureWindow+2, len(points), ErrInsufficientData)
	}
	headings = Headings(points)
	curv = Curvature(headings, p.CurvatureWindow)
	if len(curv) > p.SmoothingWindow {
		curv, err = SavGol(curv, p.SmoothingWindow, p.SmoothingOrder)
		if err != nil {
			return nil, nil, err
		}
	}
	return curv, headings, nil
}

// DetectCorners finds curvature peaks in one lap. A straight lap yields no
// candidates and no error.
func (e *Engine) DetectCorners(lap LapTrace) ([]CornerCandidate, error) {
	curv, headings, err := e.CurvatureProfile(lap.Positions())
	if err != nil {
		return nil, newError("detect corners", lap.ID, ReasonInsufficientData, err)
	}
	peaks := FindPeaks(curv, e.params.CurvatureThreshold, e.params.PeakMinDistance)
	out := make([]CornerCandidate, 0, len(peaks))
	w := e.params.CurvatureWindow
	for _, idx := range peaks {
		from := idx - w
		if from < 0 {
			from = 0
		}
		s := lap.Samples[idx]
		out = append(out, CornerCandidate{
			LapID:    lap.ID,
			Index:    idx,
			Distance: lap.Distance[idx],
			Lat:      s.Lat,
			Lon:      s.Lon,
			Heading:  headings[idx] - headings[from],
		})
	}
	return out, nil
}
