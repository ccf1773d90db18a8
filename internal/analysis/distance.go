package analysis

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/kartbox/telemetry/internal/telemetry"
)

// DistanceModel selects how consecutive GPS fixes are turned into meters.
type DistanceModel string

const (
	// DistancePlanar treats (lat, lon) degrees as a flat plane and scales the
	// Euclidean step by a fixed meters-per-degree factor.
	DistancePlanar DistanceModel = "planar"
	// DistanceHaversine uses great-circle meters and ignores the scale.
	DistanceHaversine DistanceModel = "haversine"
)

func point(p telemetry.Position) orb.Point { return orb.Point{p.Lon, p.Lat} }

// CumulativeDistance returns the distance travelled up to each point. The
// result has the same length as points, starts at 0 and never decreases.
// Fewer than two points yield zeros.
func CumulativeDistance(points []telemetry.Position, model DistanceModel, scale float64) []float64 {
	out := make([]float64, len(points))
	if len(points) < 2 {
		return out
	}
	for i := 1; i < len(points); i++ {
		a, b := point(points[i-1]), point(points[i])
		var step float64
		switch model {
		case DistanceHaversine:
			step = geo.DistanceHaversine(a, b)
		default:
			step = planar.Distance(a, b) * scale
		}
		out[i] = out[i-1] + step
	}
	return out
}

// NearestIndex returns the index of the value in dist closest to target.
// dist must be non-decreasing. Ties, including runs of repeated values,
// resolve to the earliest index. It returns -1 for an empty slice.
func NearestIndex(dist []float64, target float64) int {
	n := len(dist)
	if n == 0 {
		return -1
	}
	// First index with dist[i] >= target.
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if dist[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	best := lo
	if best == n {
		best = n - 1
	} else if best > 0 && target-dist[best-1] <= dist[best]-target {
		best--
	}
	for best > 0 && dist[best-1] == dist[best] {
		best--
	}
	return best
}
