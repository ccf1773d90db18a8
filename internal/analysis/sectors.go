package analysis

import (
	"fmt"
	"math"
)

// SectorStrategy names how a lap is divided into segments.
type SectorStrategy string

const (
	// SectorsFixedThirds splits the lap's samples into three contiguous
	// chunks of near-equal size. Used when no corner was detected.
	SectorsFixedThirds SectorStrategy = "fixed-thirds"
	// SectorsCornerBounded cuts the lap at each corner's reference distance,
	// plus a closing segment from the last corner to the lap's end.
	SectorsCornerBounded SectorStrategy = "corner-bounded"
)

// StrategyFor picks the sector strategy for a corner map.
func StrategyFor(cm CornerMap) SectorStrategy {
	if cm.Empty() {
		return SectorsFixedThirds
	}
	return SectorsCornerBounded
}

// SegmentCount returns how many segments the strategy produces.
func SegmentCount(cm CornerMap) int {
	if cm.Empty() {
		return 3
	}
	return cm.Len() + 1
}

// SectorTime is the duration of one segment in one lap.
type SectorTime struct {
	Segment int     `json:"segment"`
	LapID   int     `json:"lap_id"`
	Seconds float64 `json:"seconds"`
}

// SplitThirds returns the [start, end) bounds of three contiguous chunks of
// n items. The remainder goes to the leading chunks.
func SplitThirds(n int) [3][2]int {
	var out [3][2]int
	q, r := n/3, n%3
	start := 0
	for i := 0; i < 3; i++ {
		size := q
		if i < r {
			size++
		}
		out[i] = [2]int{start, start + size}
		start += size
	}
	return out
}

// SectorTimes measures every segment of one lap. Segments whose duration is
// not positive are reported as skips instead of times. Laps shorter than
// MinLapSamples yield no times and a single skip.
func (e *Engine) SectorTimes(lap LapTrace, cm CornerMap) ([]SectorTime, []Skip) {
	if lap.Len() < e.params.MinLapSamples {
		err := newError("sector times", lap.ID, ReasonInsufficientData,
			fmt.Errorf("%d moving samples, need %d: %w", lap.Len(), e.params.MinLapSamples, ErrInsufficientData))
		return nil, []Skip{skipFromError(StageSectors, lap.ID, err)}
	}

	var durations []float64
	if cm.Empty() {
		for _, b := range SplitThirds(lap.Len()) {
			durations = append(durations, chunkDuration(lap, b[0], b[1]))
		}
	} else {
		elapsed := lap.Elapsed()
		bounds := make([]int, 0, cm.Len()+2)
		bounds = append(bounds, NearestIndex(lap.Distance, 0))
		for _, c := range cm.Corners {
			bounds = append(bounds, NearestIndex(lap.Distance, c.ReferenceDistance))
		}
		bounds = append(bounds, lap.Len()-1)
		for i := 1; i < len(bounds); i++ {
			durations = append(durations, elapsed[bounds[i]]-elapsed[bounds[i-1]])
		}
	}

	var times []SectorTime
	var skips []Skip
	for i, d := range durations {
		seg := i + 1
		if d <= 0 || math.IsNaN(d) {
			skips = append(skips, Skip{
				Stage:   StageSectors,
				LapID:   lap.ID,
				Segment: seg,
				Reason:  ReasonNonPositiveDuration,
				Detail:  fmt.Sprintf("segment %d lasted %.3fs", seg, d),
			})
			continue
		}
		times = append(times, SectorTime{Segment: seg, LapID: lap.ID, Seconds: d})
	}
	return times, skips
}

func chunkDuration(lap LapTrace, from, to int) float64 {
	if to <= from {
		return 0
	}
	lo, hi := lap.Samples[from].TimestampMS, lap.Samples[from].TimestampMS
	for _, s := range lap.Samples[from:to] {
		if s.TimestampMS < lo {
			lo = s.TimestampMS
		}
		if s.TimestampMS > hi {
			hi = s.TimestampMS
		}
	}
	return float64(hi-lo) / 1000
}

// BestSector is the fastest time recorded for one segment.
type BestSector struct {
	Segment int     `json:"segment"`
	LapID   int     `json:"lap_id,omitempty"`
	Seconds float64 `json:"seconds"`
	Missing bool    `json:"missing,omitempty"`
}

// BestSectors picks, for each of the segments 1..segments, the minimum
// positive time across all laps. Segments no lap completed are marked
// missing and reported as skips. Equal times keep the first lap seen.
func BestSectors(times []SectorTime, segments int) ([]BestSector, []Skip) {
	best := make([]BestSector, segments)
	for i := range best {
		best[i] = BestSector{Segment: i + 1, Missing: true}
	}
	for _, t := range times {
		if t.Segment < 1 || t.Segment > segments || t.Seconds <= 0 {
			continue
		}
		b := &best[t.Segment-1]
		if b.Missing || t.Seconds < b.Seconds {
			*b = BestSector{Segment: t.Segment, LapID: t.LapID, Seconds: t.Seconds}
		}
	}
	var skips []Skip
	for _, b := range best {
		if b.Missing {
			skips = append(skips, Skip{
				Stage:   StageIdeal,
				Segment: b.Segment,
				Reason:  ReasonInsufficientData,
				Detail:  fmt.Sprintf("no lap has a positive time for segment %d", b.Segment),
			})
		}
	}
	return best, skips
}

// IdealLap sums the best sector times. Any missing segment makes the ideal
// lap undefined.
func IdealLap(best []BestSector) (float64, error) {
	if len(best) == 0 {
		return 0, newError("ideal lap", 0, ReasonInsufficientData, fmt.Errorf("no segments: %w", ErrInsufficientData))
	}
	var sum float64
	for _, b := range best {
		if b.Missing {
			return 0, newError("ideal lap", 0, ReasonInsufficientData,
				fmt.Errorf("segment %d has no time: %w", b.Segment, ErrInsufficientData))
		}
		sum += b.Seconds
	}
	return sum, nil
}
