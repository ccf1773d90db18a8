package analysis

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Signal is the lap-time consistency verdict.
type Signal string

const (
	SignalNone        Signal = "none"
	SignalElite       Signal = "elite"
	SignalOscillation Signal = "oscillation"
)

// CornerConsistency is the apex speed spread of one corner across laps.
type CornerConsistency struct {
	CornerID     int     `json:"corner_id"`
	StdDev       float64 `json:"std_dev"`
	Samples      int     `json:"samples"`
	Inconsistent bool    `json:"inconsistent"`
}

// Consistency summarises how repeatable a session was. It is descriptive
// only and never changes other results.
type Consistency struct {
	// LapTimeStdDev is the sample standard deviation of valid lap times,
	// set only when Computed is true.
	LapTimeStdDev float64             `json:"lap_time_std_dev"`
	LapCount      int                 `json:"lap_count"`
	Computed      bool                `json:"computed"`
	Signal        Signal              `json:"signal"`
	Corners       []CornerConsistency `json:"corners,omitempty"`
}

// Consistency classifies lap-time dispersion (more than two laps needed)
// and flags corners whose apex speeds vary by more than CornerSpeedStdDev.
func (e *Engine) Consistency(lapTimes []float64, apex map[int][]float64) Consistency {
	p := e.params
	out := Consistency{LapCount: len(lapTimes), Signal: SignalNone}
	if len(lapTimes) > 2 {
		out.Computed = true
		out.LapTimeStdDev = stat.StdDev(lapTimes, nil)
		switch {
		case out.LapTimeStdDev < p.TightLapStdDev:
			out.Signal = SignalElite
		case out.LapTimeStdDev > p.LooseLapStdDev:
			out.Signal = SignalOscillation
		}
	}

	ids := make([]int, 0, len(apex))
	for id := range apex {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		speeds := apex[id]
		cc := CornerConsistency{CornerID: id, Samples: len(speeds)}
		if len(speeds) >= 2 {
			cc.StdDev = stat.PopStdDev(speeds, nil)
			cc.Inconsistent = cc.StdDev > p.CornerSpeedStdDev
		}
		out.Corners = append(out.Corners, cc)
	}
	return out
}
