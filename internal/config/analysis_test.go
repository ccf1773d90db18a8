package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartbox/telemetry/internal/analysis"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsFileMatchesDefaultParams(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(cfg.Params(), analysis.DefaultParams()); diff != "" {
		t.Errorf("defaults file mismatch (-got +want):\n%s", diff)
	}
	assert.Equal(t, "kmph", cfg.GetUnits())
	assert.Equal(t, 4, cfg.GetWorkers())
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := EmptyAnalysisConfig()
	require.NoError(t, cfg.Validate())
	if diff := cmp.Diff(cfg.Params(), analysis.DefaultParams()); diff != "" {
		t.Errorf("params mismatch (-got +want):\n%s", diff)
	}
	assert.Equal(t, "kmph", cfg.GetUnits())
	assert.Equal(t, 4, cfg.GetWorkers())
}

func TestLoadAnalysisConfig_JSON(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "cluster_gap": 10,
  "distance_model": "haversine",
  "units": "mph"
}`)
	cfg, err := LoadAnalysisConfig(path)
	require.NoError(t, err)

	p := cfg.Params()
	assert.Equal(t, 10.0, p.ClusterGap)
	assert.Equal(t, analysis.DistanceHaversine, p.DistanceModel)
	// Omitted fields keep their defaults.
	assert.Equal(t, 25, p.SmoothingWindow)
	assert.Equal(t, "mph", cfg.GetUnits())
}

func TestLoadAnalysisConfig_YAML(t *testing.T) {
	path := writeConfig(t, "tuning.yaml", "curvature_threshold: 0.2\npeak_min_distance: 40\nworkers: 2\n")
	cfg, err := LoadAnalysisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.GetCurvatureThreshold())
	assert.Equal(t, 40, cfg.GetPeakMinDistance())
	assert.Equal(t, 2, cfg.GetWorkers())

	empty := writeConfig(t, "empty.yml", "")
	cfg, err = LoadAnalysisConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, analysis.DefaultParams(), cfg.Params())
}

func TestLoadAnalysisConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "tuning.toml", "cluster_gap = 1", "extension"},
		{"bad json", "tuning.json", "{", "parse config JSON"},
		{"unknown field", "tuning.json", `{"noise_relative": 0.1}`, "unknown field"},
		{"unknown yaml field", "tuning.yaml", "noise_relative: 0.1\n", "parse config YAML"},
		{"even window", "tuning.json", `{"smoothing_window": 24}`, "smoothing_window"},
		{"units", "tuning.json", `{"units": "knots"}`, "units must be one of"},
		{"workers", "tuning.yaml", "workers: 0\n", "workers must be at least 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadAnalysisConfig(writeConfig(t, tc.file, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := LoadAnalysisConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadAnalysisConfig_TooLarge(t *testing.T) {
	body := `{"cluster_gap": 7.5` + strings.Repeat(" ", maxFileSize) + `}`
	_, err := LoadAnalysisConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
