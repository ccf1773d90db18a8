package analysis

// CornerSpeed holds one lap's speeds through one corner.
type CornerSpeed struct {
	CornerID   int     `json:"corner_id"`
	LapID      int     `json:"lap_id"`
	EntrySpeed float64 `json:"entry_speed"`
	ApexSpeed  float64 `json:"apex_speed"`
	// ApexDelta is ApexSpeed minus the reference lap's apex speed for the
	// same corner; 0 when there is no reference.
	ApexDelta float64 `json:"apex_delta"`
	// ApexIndex is the sample nearest the corner's reference distance.
	ApexIndex int `json:"apex_index"`
}

// apexSpeed is the minimum speed within ApexWindow samples of idx.
func (e *Engine) apexSpeed(speeds []float64, idx int) float64 {
	lo, hi := idx-e.params.ApexWindow, idx+e.params.ApexWindow
	if lo < 0 {
		lo = 0
	}
	if hi > len(speeds)-1 {
		hi = len(speeds) - 1
	}
	min := speeds[lo]
	for _, v := range speeds[lo : hi+1] {
		if v < min {
			min = v
		}
	}
	return min
}

// ApexSpeeds returns each corner's apex speed in lap, keyed by corner id.
func (e *Engine) ApexSpeeds(lap LapTrace, cm CornerMap) map[int]float64 {
	out := make(map[int]float64, cm.Len())
	if lap.Len() == 0 {
		return out
	}
	speeds := lap.Speeds()
	for _, c := range cm.Corners {
		out[c.ID] = e.apexSpeed(speeds, NearestIndex(lap.Distance, c.ReferenceDistance))
	}
	return out
}

// CornerSpeeds measures entry and apex speed for every corner in one lap.
// refApex maps corner id to the reference lap's apex speed; a nil map yields
// zero apex deltas.
func (e *Engine) CornerSpeeds(lap LapTrace, cm CornerMap, refApex map[int]float64) []CornerSpeed {
	if lap.Len() == 0 || cm.Empty() {
		return nil
	}
	speeds := lap.Speeds()
	out := make([]CornerSpeed, 0, cm.Len())
	for _, c := range cm.Corners {
		idx := NearestIndex(lap.Distance, c.ReferenceDistance)
		entry := NearestIndex(lap.Distance, c.ReferenceDistance-e.params.EntryOffset)
		cs := CornerSpeed{
			CornerID:   c.ID,
			LapID:      lap.ID,
			EntrySpeed: speeds[entry],
			ApexSpeed:  e.apexSpeed(speeds, idx),
			ApexIndex:  idx,
		}
		if ref, ok := refApex[c.ID]; ok {
			cs.ApexDelta = cs.ApexSpeed - ref
		}
		out = append(out, cs)
	}
	return out
}
