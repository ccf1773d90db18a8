package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/units"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// AnalysisConfig is the on-disk form of the analysis parameters plus the
// batch and report settings. Every field is optional; the Get* methods
// fall back to the stock tuning for anything left unset, so partial files
// are safe.
type AnalysisConfig struct {
	// Moving filter
	MovingSpeedThreshold *float64 `json:"moving_speed_threshold,omitempty" yaml:"moving_speed_threshold,omitempty"`
	MinLapSamples        *int     `json:"min_lap_samples,omitempty" yaml:"min_lap_samples,omitempty"`

	// Distance
	DistanceModel   *string  `json:"distance_model,omitempty" yaml:"distance_model,omitempty"` // "planar" or "haversine"
	DegreesToMeters *float64 `json:"degrees_to_meters,omitempty" yaml:"degrees_to_meters,omitempty"`

	// Corner detection
	CurvatureWindow    *int     `json:"curvature_window,omitempty" yaml:"curvature_window,omitempty"`
	SmoothingWindow    *int     `json:"smoothing_window,omitempty" yaml:"smoothing_window,omitempty"`
	SmoothingOrder     *int     `json:"smoothing_order,omitempty" yaml:"smoothing_order,omitempty"`
	CurvatureThreshold *float64 `json:"curvature_threshold,omitempty" yaml:"curvature_threshold,omitempty"`
	PeakMinDistance    *int     `json:"peak_min_distance,omitempty" yaml:"peak_min_distance,omitempty"`
	ClusterGap         *float64 `json:"cluster_gap,omitempty" yaml:"cluster_gap,omitempty"`
	CornerMapLaps      *int     `json:"corner_map_laps,omitempty" yaml:"corner_map_laps,omitempty"`

	// Delta and corner speeds
	DeltaGridPoints *int     `json:"delta_grid_points,omitempty" yaml:"delta_grid_points,omitempty"`
	ApexWindow      *int     `json:"apex_window,omitempty" yaml:"apex_window,omitempty"`
	EntryOffset     *float64 `json:"entry_offset,omitempty" yaml:"entry_offset,omitempty"`

	// Consistency
	TightLapStdDev    *float64 `json:"tight_lap_std_dev,omitempty" yaml:"tight_lap_std_dev,omitempty"`
	LooseLapStdDev    *float64 `json:"loose_lap_std_dev,omitempty" yaml:"loose_lap_std_dev,omitempty"`
	CornerSpeedStdDev *float64 `json:"corner_speed_std_dev,omitempty" yaml:"corner_speed_std_dev,omitempty"`

	RankingSize *int `json:"ranking_size,omitempty" yaml:"ranking_size,omitempty"`

	// Batch and report settings
	Units   *string `json:"units,omitempty" yaml:"units,omitempty"`
	Workers *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a .json, .yaml or .yml
// file of at most 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseAnalysisConfig(data, ext)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseAnalysisConfig decodes and validates a config document. ext selects
// the decoder and is one of ".json", ".yaml" or ".yml".
func ParseAnalysisConfig(data []byte, ext string) (*AnalysisConfig, error) {
	cfg := EmptyAnalysisConfig()
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. It panics when the file
// cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set, then the combined parameters.
func (c *AnalysisConfig) Validate() error {
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return c.Params().Validate()
}

// Params builds the engine parameters, filling unset fields from
// analysis.DefaultParams.
func (c *AnalysisConfig) Params() analysis.Params {
	return analysis.Params{
		MovingSpeedThreshold: c.GetMovingSpeedThreshold(),
		MinLapSamples:        c.GetMinLapSamples(),
		DistanceModel:        analysis.DistanceModel(c.GetDistanceModel()),
		DegreesToMeters:      c.GetDegreesToMeters(),
		CurvatureWindow:      c.GetCurvatureWindow(),
		SmoothingWindow:      c.GetSmoothingWindow(),
		SmoothingOrder:       c.GetSmoothingOrder(),
		CurvatureThreshold:   c.GetCurvatureThreshold(),
		PeakMinDistance:      c.GetPeakMinDistance(),
		ClusterGap:           c.GetClusterGap(),
		CornerMapLaps:        c.GetCornerMapLaps(),
		DeltaGridPoints:      c.GetDeltaGridPoints(),
		ApexWindow:           c.GetApexWindow(),
		EntryOffset:          c.GetEntryOffset(),
		TightLapStdDev:       c.GetTightLapStdDev(),
		LooseLapStdDev:       c.GetLooseLapStdDev(),
		CornerSpeedStdDev:    c.GetCornerSpeedStdDev(),
		RankingSize:          c.GetRankingSize(),
	}
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

var defaults = analysis.DefaultParams()

// GetMovingSpeedThreshold returns the moving_speed_threshold value or the default.
func (c *AnalysisConfig) GetMovingSpeedThreshold() float64 {
	return floatOr(c.MovingSpeedThreshold, defaults.MovingSpeedThreshold)
}

// GetMinLapSamples returns the min_lap_samples value or the default.
func (c *AnalysisConfig) GetMinLapSamples() int {
	return intOr(c.MinLapSamples, defaults.MinLapSamples)
}

// GetDistanceModel returns the distance_model value or the default.
func (c *AnalysisConfig) GetDistanceModel() string {
	if c.DistanceModel == nil || *c.DistanceModel == "" {
		return string(defaults.DistanceModel)
	}
	return *c.DistanceModel
}

// GetDegreesToMeters returns the degrees_to_meters value or the default.
func (c *AnalysisConfig) GetDegreesToMeters() float64 {
	return floatOr(c.DegreesToMeters, defaults.DegreesToMeters)
}

// GetCurvatureWindow returns the curvature_window value or the default.
func (c *AnalysisConfig) GetCurvatureWindow() int {
	return intOr(c.CurvatureWindow, defaults.CurvatureWindow)
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *AnalysisConfig) GetSmoothingWindow() int {
	return intOr(c.SmoothingWindow, defaults.SmoothingWindow)
}

// GetSmoothingOrder returns the smoothing_order value or the default.
func (c *AnalysisConfig) GetSmoothingOrder() int {
	return intOr(c.SmoothingOrder, defaults.SmoothingOrder)
}

// GetCurvatureThreshold returns the curvature_threshold value or the default.
func (c *AnalysisConfig) GetCurvatureThreshold() float64 {
	return floatOr(c.CurvatureThreshold, defaults.CurvatureThreshold)
}

// GetPeakMinDistance returns the peak_min_distance value or the default.
func (c *AnalysisConfig) GetPeakMinDistance() int {
	return intOr(c.PeakMinDistance, defaults.PeakMinDistance)
}

// GetClusterGap returns the cluster_gap value or the default.
func (c *AnalysisConfig) GetClusterGap() float64 {
	return floatOr(c.ClusterGap, defaults.ClusterGap)
}

// GetCornerMapLaps returns the corner_map_laps value or the default.
func (c *AnalysisConfig) GetCornerMapLaps() int {
	return intOr(c.CornerMapLaps, defaults.CornerMapLaps)
}

// GetDeltaGridPoints returns the delta_grid_points value or the default.
func (c *AnalysisConfig) GetDeltaGridPoints() int {
	return intOr(c.DeltaGridPoints, defaults.DeltaGridPoints)
}

// GetApexWindow returns the apex_window value or the default.
func (c *AnalysisConfig) GetApexWindow() int {
	return intOr(c.ApexWindow, defaults.ApexWindow)
}

// GetEntryOffset returns the entry_offset value or the default.
func (c *AnalysisConfig) GetEntryOffset() float64 {
	return floatOr(c.EntryOffset, defaults.EntryOffset)
}

// GetTightLapStdDev returns the tight_lap_std_dev value or the default.
func (c *AnalysisConfig) GetTightLapStdDev() float64 {
	return floatOr(c.TightLapStdDev, defaults.TightLapStdDev)
}

// GetLooseLapStdDev returns the loose_lap_std_dev value or the default.
func (c *AnalysisConfig) GetLooseLapStdDev() float64 {
	return floatOr(c.LooseLapStdDev, defaults.LooseLapStdDev)
}

// GetCornerSpeedStdDev returns the corner_speed_std_dev value or the default.
func (c *AnalysisConfig) GetCornerSpeedStdDev() float64 {
	return floatOr(c.CornerSpeedStdDev, defaults.CornerSpeedStdDev)
}

// GetRankingSize returns the ranking_size value or the default.
func (c *AnalysisConfig) GetRankingSize() int {
	return intOr(c.RankingSize, defaults.RankingSize)
}

// GetUnits returns the report speed unit, km/h unless set.
func (c *AnalysisConfig) GetUnits() string {
	if c.Units == nil || *c.Units == "" {
		return units.KMPH
	}
	return *c.Units
}

// GetWorkers returns how many sessions may be analyzed at once.
func (c *AnalysisConfig) GetWorkers() int {
	return intOr(c.Workers, 4)
}
