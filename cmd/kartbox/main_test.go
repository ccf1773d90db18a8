package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/config"
	"github.com/kartbox/telemetry/internal/pipeline"
	"github.com/kartbox/telemetry/internal/report"
	"github.com/kartbox/telemetry/internal/units"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ".", *inputDir)
	assert.Equal(t, "reports", *outDir)
	assert.Equal(t, "kartbox.db", *dbPath)
	assert.True(t, *writePDF)
	assert.True(t, *writeHTML)
	assert.True(t, *writePlots)
	assert.Zero(t, *workers)
	assert.Empty(t, *speedUnits)
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, analysis.DefaultParams(), cfg.Params())
}

func TestLoadConfig_BadExtension(t *testing.T) {
	_, err := loadConfig("analysis.toml")
	assert.Error(t, err)
}

func TestResolveSettings(t *testing.T) {
	mph := units.MPH
	three := 3
	cfg := &config.AnalysisConfig{Units: &mph, Workers: &three}

	tests := []struct {
		name        string
		cfg         *config.AnalysisConfig
		unitFlag    string
		workerFlag  int
		wantUnits   string
		wantWorkers int
	}{
		{"defaults", config.EmptyAnalysisConfig(), "", 0, units.KMPH, 4},
		{"config values", cfg, "", 0, units.MPH, 3},
		{"flags win", cfg, units.MPS, 8, units.MPS, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, w := resolveSettings(tt.cfg, tt.unitFlag, tt.workerFlag)
			assert.Equal(t, tt.wantUnits, u)
			assert.Equal(t, tt.wantWorkers, w)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sum := pipeline.RunSummary{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Results: []pipeline.SessionResult{
			{
				ID:     "1",
				Status: analysis.StatusOK,
				Report: &analysis.SessionReport{
					Traces:     make([]analysis.LapTrace, 3),
					FastestLap: &analysis.RankedLap{LapID: 2, TimeText: "00:52.250", MaxSpeed: 100},
					IdealLap:   51.5,
				},
				Output: report.Output{Dir: "reports/session_1"},
			},
			{ID: "2", Status: analysis.StatusFailed, Err: errors.New("read samples: empty file")},
		},
		OK:     1,
		Failed: 1,
	}

	var buf bytes.Buffer
	printSummary(&buf, sum, units.MPH)
	out := buf.String()

	assert.Contains(t, out, "TOP SPEED (mph)")
	assert.Contains(t, out, "00:52.250 (lap 2)")
	assert.Contains(t, out, "51.500s")
	assert.Contains(t, out, "62.1")
	assert.Contains(t, out, "reports/session_1")
	assert.Contains(t, out, "read samples: empty file")
	assert.True(t, strings.HasSuffix(out, "run run-1: 1 ok, 0 degraded, 1 failed in 1.5s\n"), out)
}
