package analysis

import "fmt"

// Params holds every tunable of the engine. DefaultParams documents the
// values the datalogger's tracks were tuned with.
type Params struct {
	// MovingSpeedThreshold filters out samples at or below this speed (km/h).
	MovingSpeedThreshold float64 `json:"moving_speed_threshold"`
	// MinLapSamples is the fewest moving samples a lap needs to be analyzed.
	MinLapSamples int `json:"min_lap_samples"`

	DistanceModel   DistanceModel `json:"distance_model"`
	DegreesToMeters float64       `json:"degrees_to_meters"`

	CurvatureWindow    int     `json:"curvature_window"`
	SmoothingWindow    int     `json:"smoothing_window"`
	SmoothingOrder     int     `json:"smoothing_order"`
	CurvatureThreshold float64 `json:"curvature_threshold"`
	PeakMinDistance    int     `json:"peak_min_distance"`

	// ClusterGap is the largest distance (m) between consecutive candidates
	// of the same corner.
	ClusterGap float64 `json:"cluster_gap"`
	// CornerMapLaps is how many of the fastest laps feed the corner map.
	CornerMapLaps int `json:"corner_map_laps"`

	DeltaGridPoints int     `json:"delta_grid_points"`
	ApexWindow      int     `json:"apex_window"`
	EntryOffset     float64 `json:"entry_offset"`

	TightLapStdDev    float64 `json:"tight_lap_std_dev"`
	LooseLapStdDev    float64 `json:"loose_lap_std_dev"`
	CornerSpeedStdDev float64 `json:"corner_speed_std_dev"`

	// RankingSize caps the session ranking.
	RankingSize int `json:"ranking_size"`
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		MovingSpeedThreshold: 5,
		MinLapSamples:        10,
		DistanceModel:        DistancePlanar,
		DegreesToMeters:      111111,
		CurvatureWindow:      20,
		SmoothingWindow:      25,
		SmoothingOrder:       3,
		CurvatureThreshold:   0.1,
		PeakMinDistance:      30,
		ClusterGap:           7.5,
		CornerMapLaps:        3,
		DeltaGridPoints:      250,
		ApexWindow:           8,
		EntryOffset:          15,
		TightLapStdDev:       0.8,
		LooseLapStdDev:       2.0,
		CornerSpeedStdDev:    2.0,
		RankingSize:          10,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.MovingSpeedThreshold < 0 {
		return fmt.Errorf("moving_speed_threshold must be non-negative, got %v", p.MovingSpeedThreshold)
	}
	if p.MinLapSamples < 2 {
		return fmt.Errorf("min_lap_samples must be at least 2, got %d", p.MinLapSamples)
	}
	switch p.DistanceModel {
	case DistancePlanar, DistanceHaversine:
	default:
		return fmt.Errorf("unknown distance_model %q", p.DistanceModel)
	}
	if p.DistanceModel == DistancePlanar && p.DegreesToMeters <= 0 {
		return fmt.Errorf("degrees_to_meters must be positive, got %v", p.DegreesToMeters)
	}
	if p.CurvatureWindow < 1 {
		return fmt.Errorf("curvature_window must be at least 1, got %d", p.CurvatureWindow)
	}
	if p.SmoothingWindow%2 == 0 || p.SmoothingWindow < 3 {
		return fmt.Errorf("smoothing_window must be odd and at least 3, got %d", p.SmoothingWindow)
	}
	if p.SmoothingOrder < 0 || p.SmoothingOrder >= p.SmoothingWindow {
		return fmt.Errorf("smoothing_order must be in [0, %d), got %d", p.SmoothingWindow, p.SmoothingOrder)
	}
	if p.CurvatureThreshold < 0 {
		return fmt.Errorf("curvature_threshold must be non-negative, got %v", p.CurvatureThreshold)
	}
	if p.PeakMinDistance < 1 {
		return fmt.Errorf("peak_min_distance must be at least 1, got %d", p.PeakMinDistance)
	}
	if p.ClusterGap <= 0 {
		return fmt.Errorf("cluster_gap must be positive, got %v", p.ClusterGap)
	}
	if p.CornerMapLaps < 1 {
		return fmt.Errorf("corner_map_laps must be at least 1, got %d", p.CornerMapLaps)
	}
	if p.DeltaGridPoints < 2 {
		return fmt.Errorf("delta_grid_points must be at least 2, got %d", p.DeltaGridPoints)
	}
	if p.ApexWindow < 0 {
		return fmt.Errorf("apex_window must be non-negative, got %d", p.ApexWindow)
	}
	if p.EntryOffset < 0 {
		return fmt.Errorf("entry_offset must be non-negative, got %v", p.EntryOffset)
	}
	if p.TightLapStdDev < 0 || p.LooseLapStdDev < p.TightLapStdDev {
		return fmt.Errorf("lap std dev thresholds must satisfy 0 <= tight <= loose, got %v/%v", p.TightLapStdDev, p.LooseLapStdDev)
	}
	if p.CornerSpeedStdDev < 0 {
		return fmt.Errorf("corner_speed_std_dev must be non-negative, got %v", p.CornerSpeedStdDev)
	}
	if p.RankingSize < 1 {
		return fmt.Errorf("ranking_size must be at least 1, got %d", p.RankingSize)
	}
	return nil
}
