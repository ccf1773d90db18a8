package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kartbox/telemetry/internal/monitoring"
)

// ReadStats counts what a reader kept and dropped.
type ReadStats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

var requiredSampleColumns = []string{"timestamp_ms", "lat", "lon", "speed", "lap"}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr
}

// normalizeHeader maps column names to their index. Names are trimmed,
// lower-cased and spaces become underscores.
func normalizeHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func field(row []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[idx]), true
}

// ReadSamples parses a data_<id>.csv stream. The mode column is optional and
// defaults to QUALY. Rows whose numeric fields do not parse are dropped and
// counted in the returned stats rather than zero-filled.
func ReadSamples(r io.Reader) ([]Sample, ReadStats, error) {
	var stats ReadStats
	cr := newReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("read samples header: empty file: %w", ErrParseFailure)
		}
		return nil, stats, fmt.Errorf("read samples header: %w", err)
	}
	cols := normalizeHeader(header)
	for _, name := range requiredSampleColumns {
		if _, ok := cols[name]; !ok {
			return nil, stats, fmt.Errorf("samples header missing column %q: %w", name, ErrParseFailure)
		}
	}
	modeIdx, hasMode := cols["mode"]
	if !hasMode {
		modeIdx = -1
	}

	var out []Sample
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.Dropped++
				continue
			}
			return out, stats, fmt.Errorf("read samples: %w", err)
		}
		stats.Rows++
		s, ok := parseSampleRow(row, cols, modeIdx)
		if !ok {
			stats.Dropped++
			continue
		}
		out = append(out, s)
	}
	stats.Kept = len(out)
	if stats.Dropped > 0 {
		monitoring.Logf("telemetry: dropped %d of %d sample rows", stats.Dropped, stats.Rows)
	}
	return out, stats, nil
}

// parseFinite parses a float field, rejecting NaN and infinities.
func parseFinite(v string) (float64, bool) {
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

func parseSampleRow(row []string, cols map[string]int, modeIdx int) (Sample, bool) {
	var s Sample
	ts, ok := field(row, cols["timestamp_ms"])
	if !ok {
		return s, false
	}
	tsf, ok := parseFinite(ts)
	if !ok {
		return s, false
	}
	s.TimestampMS = int64(tsf)

	floats := []struct {
		col string
		dst *float64
	}{
		{"lat", &s.Lat},
		{"lon", &s.Lon},
		{"speed", &s.Speed},
	}
	for _, f := range floats {
		v, ok := field(row, cols[f.col])
		if !ok {
			return s, false
		}
		x, ok := parseFinite(v)
		if !ok {
			return s, false
		}
		*f.dst = x
	}

	lap, ok := field(row, cols["lap"])
	if !ok {
		return s, false
	}
	lf, ok := parseFinite(lap)
	if !ok {
		return s, false
	}
	s.Lap = int(lf)

	s.Mode = ModeQualy
	if v, ok := field(row, modeIdx); ok && v != "" {
		m, err := ParseMode(v)
		if err != nil {
			return s, false
		}
		s.Mode = m
	}
	return s, true
}

// ReadLaps parses a laps_<id>.csv stream in either of its two forms: the
// headered "Lap,Time,Mode" form or the firmware's headerless
// "lap,seconds.millis,avg_speed" form. Rows whose time does not parse are
// kept with TimeSeconds 0 and TimeErr set; rows whose lap number does not
// parse are dropped.
func ReadLaps(r io.Reader) ([]Lap, error) {
	cr := newReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read laps: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	lapIdx, timeIdx, modeIdx, avgIdx := 0, 1, -1, 2
	body := records
	if first, _ := field(records[0], 0); !isInteger(first) {
		cols := normalizeHeader(records[0])
		var ok bool
		if lapIdx, ok = cols["lap"]; !ok {
			return nil, fmt.Errorf("laps header missing column %q: %w", "lap", ErrParseFailure)
		}
		if timeIdx, ok = cols["time"]; !ok {
			return nil, fmt.Errorf("laps header missing column %q: %w", "time", ErrParseFailure)
		}
		modeIdx, avgIdx = -1, -1
		if i, ok := cols["mode"]; ok {
			modeIdx = i
		}
		for _, name := range []string{"avg_speed", "avgspeed", "avg"} {
			if i, ok := cols[name]; ok {
				avgIdx = i
				break
			}
		}
		body = records[1:]
	}

	laps := make([]Lap, 0, len(body))
	for _, row := range body {
		idText, ok := field(row, lapIdx)
		if !ok || !isInteger(idText) {
			continue
		}
		id, _ := strconv.Atoi(idText)
		lap := Lap{ID: id}

		lap.TimeText, _ = field(row, timeIdx)
		lap.TimeSeconds, lap.TimeErr = ParseLapTime(lap.TimeText)

		if v, ok := field(row, modeIdx); ok && v != "" {
			if m, err := ParseMode(v); err == nil {
				lap.Mode = m
			}
		}
		if v, ok := field(row, avgIdx); ok && v != "" {
			if x, ok := parseFinite(v); ok {
				lap.AvgSpeed = x
			}
		}
		laps = append(laps, lap)
	}
	return laps, nil
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
