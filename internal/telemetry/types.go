// Package telemetry holds the datalogger's record types and the readers for
// its data and laps CSV files.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/kartbox/telemetry/internal/errs"
)

const (
	// ErrParseFailure marks a field that could not be converted.
	ErrParseFailure = errs.Error("parse failure")
	// ErrMissingTime marks a lap that has no recorded time at all.
	ErrMissingTime = errs.Error("no recorded lap time")
)

// Mode is the session mode the datalogger was in when a sample was taken.
type Mode string

const (
	ModeUnknown Mode = ""
	ModeQualy   Mode = "QUALY"
	ModeRace    Mode = "RACE"
)

// Modes lists the known modes in report order.
var Modes = []Mode{ModeQualy, ModeRace}

// ParseMode accepts the firmware's numeric form (0 = QUALY, 1 = RACE) or
// either name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "0", "QUALY":
		return ModeQualy, nil
	case "1", "RACE":
		return ModeRace, nil
	}
	return ModeUnknown, fmt.Errorf("mode %q: %w", s, ErrParseFailure)
}

func (m Mode) String() string {
	if m == ModeUnknown {
		return "UNKNOWN"
	}
	return string(m)
}

// Position is a GPS fix in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sample is one row of a data_<id>.csv file. Speed is in km/h.
type Sample struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Speed       float64 `json:"speed"`
	Lap         int     `json:"lap"`
	Mode        Mode    `json:"mode"`
}

// Position returns the sample's GPS fix.
func (s Sample) Position() Position { return Position{Lat: s.Lat, Lon: s.Lon} }

// Lap is one row of a laps_<id>.csv file.
type Lap struct {
	ID          int     `json:"id"`
	Mode        Mode    `json:"mode"`
	TimeText    string  `json:"time_text"`
	TimeSeconds float64 `json:"time_seconds"`
	AvgSpeed    float64 `json:"avg_speed,omitempty"`
	// TimeErr is set when TimeText could not be parsed; TimeSeconds is 0.
	TimeErr error `json:"-"`
}

// Valid reports whether the lap carries a usable time. Invalid laps are
// never ranked and never chosen as reference.
func (l Lap) Valid() bool {
	return l.TimeErr == nil && l.TimeSeconds > 0
}

// LapSamples is the ordered samples of one lap.
type LapSamples struct {
	ID      int
	Mode    Mode
	Samples []Sample
}

// Positions returns the lap's GPS fixes in sample order.
func (l LapSamples) Positions() []Position {
	out := make([]Position, len(l.Samples))
	for i, s := range l.Samples {
		out[i] = s.Position()
	}
	return out
}

// MaxSpeed returns the highest speed in the lap, or 0 when empty.
func (l LapSamples) MaxSpeed() float64 {
	var max float64
	for _, s := range l.Samples {
		if s.Speed > max {
			max = s.Speed
		}
	}
	return max
}
