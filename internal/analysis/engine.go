// Package analysis derives track geometry and lap performance from moving
// telemetry samples: distance accumulation, curvature-based corner
// detection, sector and ideal-lap times, reference deltas, corner speeds and
// consistency statistics.
//
// Every computation is a pure function of its inputs. An Engine only carries
// its Params, so one Engine may analyze many sessions concurrently.
package analysis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kartbox/telemetry/internal/monitoring"
	"github.com/kartbox/telemetry/internal/telemetry"
)

// Engine runs the analysis chain with a fixed set of parameters.
type Engine struct {
	params Params
}

// NewEngine validates p and returns an Engine using it.
func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis params: %w", err)
	}
	return &Engine{params: p}, nil
}

// Params returns a copy of the engine's parameters.
func (e *Engine) Params() Params { return e.params }

// Status summarises how complete a session's results are.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// SessionInput is everything read from one session's files.
type SessionInput struct {
	ID      string
	Samples []telemetry.Sample
	// Laps may be empty when the session has no laps file; lap records are
	// then derived from the samples and carry no time.
	Laps []telemetry.Lap
}

// LapResult is the per-lap part of a session report.
type LapResult struct {
	ID          int            `json:"id"`
	Mode        telemetry.Mode `json:"mode"`
	TimeText    string         `json:"time_text,omitempty"`
	TimeSeconds float64        `json:"time_seconds"`
	Valid       bool           `json:"valid"`
	Samples     int            `json:"samples"`
	MaxSpeed    float64        `json:"max_speed"`
	Analyzed    bool           `json:"analyzed"`
	Reference   bool           `json:"reference,omitempty"`
	Sectors     []SectorTime   `json:"sectors,omitempty"`
	Corners     []CornerSpeed  `json:"corners,omitempty"`
	Delta       *DeltaTrace    `json:"delta,omitempty"`
}

// RankedLap is one row of the session ranking.
type RankedLap struct {
	Rank        int            `json:"rank"`
	LapID       int            `json:"lap_id"`
	Mode        telemetry.Mode `json:"mode"`
	TimeText    string         `json:"time_text"`
	TimeSeconds float64        `json:"time_seconds"`
	MaxSpeed    float64        `json:"max_speed"`
}

// SessionReport is the full result of analyzing one session.
type SessionReport struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Params Params `json:"params"`

	SampleCount int `json:"sample_count"`
	MovingCount int `json:"moving_count"`

	CornerMap     CornerMap      `json:"corner_map"`
	CornerMapLaps []int          `json:"corner_map_laps,omitempty"`
	Strategy      SectorStrategy `json:"sector_strategy"`

	Laps        []LapResult  `json:"laps"`
	BestSectors []BestSector `json:"best_sectors"`
	// IdealLap is 0 when IdealLapError is set.
	IdealLap      float64 `json:"ideal_lap"`
	IdealLapError string  `json:"ideal_lap_error,omitempty"`

	// FastestLap is nil when no lap carries a valid time.
	FastestLap     *RankedLap  `json:"fastest_lap,omitempty"`
	TimeLost       float64     `json:"time_lost"`
	ReferenceLapID int         `json:"reference_lap_id,omitempty"`
	Ranking        []RankedLap `json:"ranking"`

	Consistency Consistency `json:"consistency"`
	Skips       []Skip      `json:"skips,omitempty"`

	// DeltaErr is set when no reference could be built; deltas are then
	// absent but every other output is still reported.
	DeltaErr   error  `json:"-"`
	DeltaError string `json:"delta_error,omitempty"`

	// Traces holds the analyzed laps for report rendering, ordered by id.
	Traces []LapTrace `json:"-"`
}

// Lap returns the result for lap id.
func (r *SessionReport) Lap(id int) (LapResult, bool) {
	for _, l := range r.Laps {
		if l.ID == id {
			return l, true
		}
	}
	return LapResult{}, false
}

// Trace returns the analyzed trace for lap id.
func (r *SessionReport) Trace(id int) (LapTrace, bool) {
	for _, t := range r.Traces {
		if t.ID == id {
			return t, true
		}
	}
	return LapTrace{}, false
}

// AnalyzeSession runs the whole chain on one session: moving filter, per-lap
// distance, curvature, corner map, sectors and ideal lap, reference deltas,
// corner speeds and consistency. Units of work that lack data are recorded
// as skips. An error is returned only when no lap could be analyzed; the
// report is still returned with status failed.
func (e *Engine) AnalyzeSession(in SessionInput) (*SessionReport, error) {
	p := e.params
	logf := monitoring.Session(in.ID)
	rep := &SessionReport{ID: in.ID, Status: StatusOK, Params: p, SampleCount: len(in.Samples)}

	moving := telemetry.MovingSamples(in.Samples, p.MovingSpeedThreshold)
	rep.MovingCount = len(moving)
	groups := telemetry.GroupByLap(moving)

	laps := in.Laps
	if len(laps) == 0 {
		laps = telemetry.LapsFromSamples(groups)
	}
	laps = telemetry.ResolveLapModes(laps, telemetry.GroupByLap(in.Samples))
	lapByID := make(map[int]telemetry.Lap, len(laps))
	for _, l := range laps {
		if _, dup := lapByID[l.ID]; !dup {
			lapByID[l.ID] = l
		}
		if l.ID != 0 && errors.Is(l.TimeErr, ErrParseFailure) {
			rep.Skips = append(rep.Skips, skipFromError(StageLapTime, l.ID, l.TimeErr))
		}
	}

	// Per-lap traces; lap 0 is the out-lap and is never analyzed.
	traceByID := make(map[int]LapTrace)
	movingCount := make(map[int]int)
	maxSpeed := make(map[int]float64)
	for _, g := range groups {
		movingCount[g.ID] = len(g.Samples)
		maxSpeed[g.ID] = g.MaxSpeed()
		if g.ID == 0 {
			continue
		}
		if len(g.Samples) < p.MinLapSamples {
			rep.Skips = append(rep.Skips, Skip{
				Stage:  StageLap,
				LapID:  g.ID,
				Reason: ReasonInsufficientData,
				Detail: fmt.Sprintf("%d moving samples, need %d", len(g.Samples), p.MinLapSamples),
			})
			continue
		}
		t := e.Trace(g)
		traceByID[g.ID] = t
		rep.Traces = append(rep.Traces, t)
	}
	if len(rep.Traces) == 0 {
		rep.Status = StatusFailed
		err := newError("analyze session", 0, ReasonInsufficientData,
			fmt.Errorf("no lap has %d moving samples: %w", p.MinLapSamples, ErrInsufficientData))
		logf("%v", err)
		return rep, err
	}

	// Ranking over valid lap times.
	var valid []telemetry.Lap
	for _, l := range laps {
		if l.ID != 0 && l.Valid() {
			valid = append(valid, l)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].TimeSeconds != valid[j].TimeSeconds {
			return valid[i].TimeSeconds < valid[j].TimeSeconds
		}
		return valid[i].ID < valid[j].ID
	})
	for i, l := range valid {
		if i >= p.RankingSize {
			break
		}
		rep.Ranking = append(rep.Ranking, RankedLap{
			Rank: i + 1, LapID: l.ID, Mode: l.Mode, TimeText: l.TimeText,
			TimeSeconds: l.TimeSeconds, MaxSpeed: maxSpeed[l.ID],
		})
	}
	if len(rep.Ranking) > 0 {
		fastest := rep.Ranking[0]
		rep.FastestLap = &fastest
	}

	// Corner map from the fastest analyzed laps, or the first analyzed laps
	// when no lap time is known.
	for _, l := range valid {
		if len(rep.CornerMapLaps) == p.CornerMapLaps {
			break
		}
		if _, ok := traceByID[l.ID]; ok {
			rep.CornerMapLaps = append(rep.CornerMapLaps, l.ID)
		}
	}
	if len(rep.CornerMapLaps) == 0 {
		for _, t := range rep.Traces {
			if len(rep.CornerMapLaps) == p.CornerMapLaps {
				break
			}
			rep.CornerMapLaps = append(rep.CornerMapLaps, t.ID)
		}
	}
	var candidates []CornerCandidate
	for _, id := range rep.CornerMapLaps {
		c, err := e.DetectCorners(traceByID[id])
		if err != nil {
			rep.Skips = append(rep.Skips, skipFromError(StageCorners, id, err))
			continue
		}
		candidates = append(candidates, c...)
	}
	rep.CornerMap = BuildCornerMap(candidates, p.ClusterGap)
	rep.Strategy = StrategyFor(rep.CornerMap)
	logf("corner map: %d corners from %d candidates on laps %v", rep.CornerMap.Len(), len(candidates), rep.CornerMapLaps)

	// Sectors and ideal lap.
	sectorsByLap := make(map[int][]SectorTime)
	var allSectors []SectorTime
	for _, t := range rep.Traces {
		times, skips := e.SectorTimes(t, rep.CornerMap)
		sectorsByLap[t.ID] = times
		allSectors = append(allSectors, times...)
		rep.Skips = append(rep.Skips, skips...)
	}
	best, skips := BestSectors(allSectors, SegmentCount(rep.CornerMap))
	rep.BestSectors = best
	rep.Skips = append(rep.Skips, skips...)
	if ideal, err := IdealLap(best); err != nil {
		rep.IdealLapError = err.Error()
		rep.Status = StatusDegraded
	} else {
		rep.IdealLap = ideal
		if rep.FastestLap != nil {
			rep.TimeLost = rep.FastestLap.TimeSeconds - ideal
		}
	}

	// Reference and deltas.
	var ref *Reference
	for _, l := range valid {
		t, ok := traceByID[l.ID]
		if !ok {
			continue
		}
		r, err := NewReference(t)
		if err != nil {
			rep.DeltaErr = err
		} else {
			ref = r
		}
		break
	}
	if ref == nil && rep.DeltaErr == nil {
		rep.DeltaErr = newError("reference", 0, ReasonNoReference,
			fmt.Errorf("no valid lap time with enough samples: %w", ErrUndefinedReference))
	}
	var refApex map[int]float64
	if ref != nil {
		rep.ReferenceLapID = ref.LapID
		refApex = e.ApexSpeeds(ref.Trace(), rep.CornerMap)
	} else {
		rep.DeltaError = rep.DeltaErr.Error()
		rep.Status = StatusDegraded
		rep.Skips = append(rep.Skips, skipFromError(StageReference, 0, rep.DeltaErr))
		logf("deltas skipped: %v", rep.DeltaErr)
	}

	apex := make(map[int][]float64)
	for _, t := range rep.Traces {
		lr := LapResult{Analyzed: true, Sectors: sectorsByLap[t.ID]}
		if ref != nil {
			d, err := ref.Delta(t, p.DeltaGridPoints)
			if err != nil {
				rep.Skips = append(rep.Skips, skipFromError(StageDelta, t.ID, err))
			} else {
				lr.Delta = &d
			}
			lr.Reference = t.ID == ref.LapID
		}
		lr.Corners = e.CornerSpeeds(t, rep.CornerMap, refApex)
		for _, cs := range lr.Corners {
			apex[cs.CornerID] = append(apex[cs.CornerID], cs.ApexSpeed)
		}
		e.fillLap(&lr, t.ID, t.Mode, lapByID, movingCount, maxSpeed)
		rep.Laps = append(rep.Laps, lr)
	}

	// Laps with a record but no analysis still appear in the report.
	reported := make(map[int]bool, len(laps))
	for id := range traceByID {
		reported[id] = true
	}
	for _, l := range laps {
		if l.ID == 0 || reported[l.ID] {
			continue
		}
		reported[l.ID] = true
		lr := LapResult{}
		e.fillLap(&lr, l.ID, l.Mode, lapByID, movingCount, maxSpeed)
		rep.Laps = append(rep.Laps, lr)
	}
	sort.SliceStable(rep.Laps, func(i, j int) bool { return rep.Laps[i].ID < rep.Laps[j].ID })

	lapTimes := make([]float64, 0, len(valid))
	for _, l := range valid {
		lapTimes = append(lapTimes, l.TimeSeconds)
	}
	rep.Consistency = e.Consistency(lapTimes, apex)

	logf("analyzed %d laps, status %s, %d skips", len(rep.Traces), rep.Status, len(rep.Skips))
	return rep, nil
}

func (e *Engine) fillLap(lr *LapResult, id int, mode telemetry.Mode, lapByID map[int]telemetry.Lap, moving map[int]int, maxSpeed map[int]float64) {
	lr.ID = id
	lr.Mode = mode
	lr.Samples = moving[id]
	lr.MaxSpeed = maxSpeed[id]
	if l, ok := lapByID[id]; ok {
		lr.TimeText = l.TimeText
		lr.TimeSeconds = l.TimeSeconds
		lr.Valid = l.Valid()
		if l.Mode != telemetry.ModeUnknown {
			lr.Mode = l.Mode
		}
	}
}
