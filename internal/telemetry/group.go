package telemetry

import (
	"fmt"
	"sort"
)

// MovingSamples returns the samples whose speed is strictly above threshold.
func MovingSamples(samples []Sample, threshold float64) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Speed > threshold {
			out = append(out, s)
		}
	}
	return out
}

// GroupByLap splits samples by lap id, ordered by id. Sample order within a
// lap is preserved. Each group's mode is the majority mode of its samples,
// ties going to the mode seen first.
func GroupByLap(samples []Sample) []LapSamples {
	idx := make(map[int]int)
	var groups []LapSamples
	for _, s := range samples {
		i, ok := idx[s.Lap]
		if !ok {
			i = len(groups)
			idx[s.Lap] = i
			groups = append(groups, LapSamples{ID: s.Lap})
		}
		groups[i].Samples = append(groups[i].Samples, s)
	}
	for i := range groups {
		groups[i].Mode = majorityMode(groups[i].Samples)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].ID < groups[b].ID })
	return groups
}

func majorityMode(samples []Sample) Mode {
	counts := make(map[Mode]int)
	var order []Mode
	for _, s := range samples {
		if _, seen := counts[s.Mode]; !seen {
			order = append(order, s.Mode)
		}
		counts[s.Mode]++
	}
	if len(order) == 0 {
		return ModeUnknown
	}
	best := order[0]
	for _, m := range order[1:] {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best
}

// ResolveLapModes fills laps without a mode from the matching sample group.
// The input slice is not modified.
func ResolveLapModes(laps []Lap, groups []LapSamples) []Lap {
	modes := make(map[int]Mode, len(groups))
	for _, g := range groups {
		modes[g.ID] = g.Mode
	}
	out := make([]Lap, len(laps))
	copy(out, laps)
	for i := range out {
		if out[i].Mode == ModeUnknown {
			out[i].Mode = modes[out[i].ID]
		}
	}
	return out
}

// LapsFromSamples builds lap records for a session that has no laps file.
// The laps carry no time and are therefore never valid.
func LapsFromSamples(groups []LapSamples) []Lap {
	out := make([]Lap, 0, len(groups))
	for _, g := range groups {
		out = append(out, Lap{
			ID:      g.ID,
			Mode:    g.Mode,
			TimeErr: fmt.Errorf("lap %d: %w", g.ID, ErrMissingTime),
		})
	}
	return out
}
