package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kartbox/telemetry/internal/telemetry"
)

// Square track geometry. Each side is SquareSide steps of SquareStep degrees
// (about 1.11 m), so a lap has 4*SquareSide samples and three 90 degree left
// turns inside it; the fourth turn sits on the start/finish line.
const (
	SquareSide = 60
	SquareStep = 1e-5
	OriginLat  = -23.70
	OriginLon  = -46.69
	BaseStepMS = 100.0
	StepMeters = SquareStep * 111111
)

// SquareCornerIndices are the heading indices at which the square turns.
var SquareCornerIndices = []int{SquareSide, 2 * SquareSide, 3 * SquareSide}

// SquarePositions returns one lap of the square, counter-clockwise from the
// south-west corner.
func SquarePositions() []telemetry.Position {
	n := 4 * SquareSide
	out := make([]telemetry.Position, n)
	side := float64(SquareSide) * SquareStep
	for j := 0; j < n; j++ {
		k := float64(j%SquareSide) * SquareStep
		switch j / SquareSide {
		case 0:
			out[j] = telemetry.Position{Lat: OriginLat, Lon: OriginLon + k}
		case 1:
			out[j] = telemetry.Position{Lat: OriginLat + k, Lon: OriginLon + side}
		case 2:
			out[j] = telemetry.Position{Lat: OriginLat + side, Lon: OriginLon + side - k}
		default:
			out[j] = telemetry.Position{Lat: OriginLat + side - k, Lon: OriginLon}
		}
	}
	return out
}

// StraightPositions returns n points heading due east.
func StraightPositions(n int) []telemetry.Position {
	out := make([]telemetry.Position, n)
	for i := range out {
		out[i] = telemetry.Position{Lat: OriginLat, Lon: OriginLon + float64(i)*SquareStep}
	}
	return out
}

// LapSpec describes one synthetic lap around the square. SideScale stretches
// the time spent on each side; zero entries mean 1.
type LapSpec struct {
	ID        int
	Mode      telemetry.Mode
	SideScale [4]float64
}

func (s LapSpec) stepMS(j int) float64 {
	scale := s.SideScale[(j/SquareSide)%4]
	if scale == 0 {
		scale = 1
	}
	dt := BaseStepMS * scale
	for _, c := range SquareCornerIndices {
		if j >= c-5 && j <= c+5 {
			dt *= 1.5
		}
	}
	return math.Round(dt)
}

// SquareSession builds the samples and lap records of a session around the
// square. A stationary out-lap (lap 0) precedes the timed laps. Lap times in
// the returned records include the step back to the start line.
func SquareSession(specs ...LapSpec) ([]telemetry.Sample, []telemetry.Lap) {
	positions := SquarePositions()
	var samples []telemetry.Sample
	var laps []telemetry.Lap

	var ts float64
	for i := 0; i < 20; i++ {
		samples = append(samples, telemetry.Sample{
			TimestampMS: int64(ts), Lat: OriginLat, Lon: OriginLon, Speed: 0, Lap: 0, Mode: telemetry.ModeQualy,
		})
		ts += BaseStepMS
	}

	for _, spec := range specs {
		mode := spec.Mode
		if mode == telemetry.ModeUnknown {
			mode = telemetry.ModeQualy
		}
		start := ts
		for j, p := range positions {
			dt := spec.stepMS(j)
			samples = append(samples, telemetry.Sample{
				TimestampMS: int64(ts),
				Lat:         p.Lat,
				Lon:         p.Lon,
				Speed:       StepMeters / (dt / 1000) * 3.6,
				Lap:         spec.ID,
				Mode:        mode,
			})
			ts += dt
		}
		secs := (ts - start) / 1000
		laps = append(laps, telemetry.Lap{
			ID:          spec.ID,
			Mode:        mode,
			TimeText:    telemetry.FormatLapTime(secs),
			TimeSeconds: secs,
		})
	}
	return samples, laps
}

// SamplesCSV renders samples in the datalogger's data file format.
func SamplesCSV(samples []telemetry.Sample) string {
	var b strings.Builder
	b.WriteString("Timestamp_ms,Lat,Lon,Speed,Mode,Lap\n")
	for _, s := range samples {
		mode := 0
		if s.Mode == telemetry.ModeRace {
			mode = 1
		}
		fmt.Fprintf(&b, "%d,%.8f,%.8f,%.3f,%d,%d\n", s.TimestampMS, s.Lat, s.Lon, s.Speed, mode, s.Lap)
	}
	return b.String()
}

// LapsCSV renders lap records in the headered "Lap,Time,Mode" form.
func LapsCSV(laps []telemetry.Lap) string {
	var b strings.Builder
	b.WriteString("Lap,Time,Mode\n")
	for _, l := range laps {
		fmt.Fprintf(&b, "%d,%s,%s\n", l.ID, l.TimeText, l.Mode)
	}
	return b.String()
}

// WriteSession writes data_<id>.csv and, when laps is non-nil,
// laps_<id>.csv into dir.
func WriteSession(t *testing.T, dir, id string, samples []telemetry.Sample, laps []telemetry.Lap) {
	t.Helper()
	data := filepath.Join(dir, "data_"+id+".csv")
	if err := os.WriteFile(data, []byte(SamplesCSV(samples)), 0o644); err != nil {
		t.Fatalf("write %s: %v", data, err)
	}
	if laps == nil {
		return
	}
	lapsPath := filepath.Join(dir, "laps_"+id+".csv")
	if err := os.WriteFile(lapsPath, []byte(LapsCSV(laps)), 0o644); err != nil {
		t.Fatalf("write %s: %v", lapsPath, err)
	}
}
