package telemetry

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSamples(t *testing.T) {
	in := `Timestamp_ms,Lat,Lon,Speed,Mode,Lap
1000,-23.700001,-46.690001,42.5,0,1
1100,-23.700002,-46.690002,43.0,1,1
bad,-23.7,-46.69,1,0,1
1200,-23.700003,-46.690003,,0,2
1300,-23.700004,-46.690004,44.1,RACE,2
`
	got, stats, err := ReadSamples(strings.NewReader(in))
	require.NoError(t, err)

	want := []Sample{
		{TimestampMS: 1000, Lat: -23.700001, Lon: -46.690001, Speed: 42.5, Lap: 1, Mode: ModeQualy},
		{TimestampMS: 1100, Lat: -23.700002, Lon: -46.690002, Speed: 43.0, Lap: 1, Mode: ModeRace},
		{TimestampMS: 1300, Lat: -23.700004, Lon: -46.690004, Speed: 44.1, Lap: 2, Mode: ModeRace},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("ReadSamples mismatch (-got +want):\n%s", diff)
	}
	assert.Equal(t, ReadStats{Rows: 5, Kept: 3, Dropped: 2}, stats)
}

func TestReadSamples_NonFiniteDropped(t *testing.T) {
	in := `Timestamp_ms,Lat,Lon,Speed,Lap
1000,-23.700001,-46.690001,42.5,1
1100,NaN,-46.690002,43.0,1
1200,-23.700003,Inf,43.5,1
1300,-23.700004,-46.690004,+Inf,1
1400,-23.700005,-46.690005,-inf,1
NaN,-23.700006,-46.690006,44.0,1
1600,-23.700007,-46.690007,44.5,nan
1700,-23.700008,-46.690008,45.0,1
`
	got, stats, err := ReadSamples(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, ReadStats{Rows: 8, Kept: 2, Dropped: 6}, stats)
	require.Len(t, got, 2)
	assert.EqualValues(t, 1000, got[0].TimestampMS)
	assert.EqualValues(t, 1700, got[1].TimestampMS)
}

func TestReadSamples_HeaderNormalization(t *testing.T) {
	in := " timestamp_MS , LAT,lon , speed,lap\n5,1.5,2.5,10,3\n"
	got, _, err := ReadSamples(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ModeQualy, got[0].Mode, "missing mode column defaults to QUALY")
	assert.Equal(t, 3, got[0].Lap)
}

func TestReadSamples_MissingColumn(t *testing.T) {
	_, _, err := ReadSamples(strings.NewReader("Timestamp_ms,Lat,Lon,Lap\n1,2,3,4\n"))
	assert.ErrorIs(t, err, ErrParseFailure)

	_, _, err = ReadSamples(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestReadLaps_Headered(t *testing.T) {
	in := "Lap,Time,Mode\n1,1:23.456,QUALY\n2,banana,RACE\n3,82.1,\n"
	laps, err := ReadLaps(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, laps, 3)

	assert.Equal(t, 1, laps[0].ID)
	assert.InDelta(t, 83.456, laps[0].TimeSeconds, 1e-9)
	assert.Equal(t, ModeQualy, laps[0].Mode)
	assert.True(t, laps[0].Valid())

	assert.Equal(t, 0.0, laps[1].TimeSeconds)
	assert.ErrorIs(t, laps[1].TimeErr, ErrParseFailure)
	assert.False(t, laps[1].Valid())
	assert.Equal(t, ModeRace, laps[1].Mode)

	assert.Equal(t, ModeUnknown, laps[2].Mode)
}

func TestReadLaps_Firmware(t *testing.T) {
	in := "1,61.250,48.3\n2,59.875,49.9\n"
	laps, err := ReadLaps(strings.NewReader(in))
	require.NoError(t, err)

	want := []Lap{
		{ID: 1, TimeText: "61.250", TimeSeconds: 61.25, AvgSpeed: 48.3},
		{ID: 2, TimeText: "59.875", TimeSeconds: 59.875, AvgSpeed: 49.9},
	}
	if diff := cmp.Diff(laps, want, cmpopts.IgnoreFields(Lap{}, "TimeErr")); diff != "" {
		t.Errorf("ReadLaps mismatch (-got +want):\n%s", diff)
	}
}

func TestReadLaps_Empty(t *testing.T) {
	laps, err := ReadLaps(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, laps)

	_, err = ReadLaps(strings.NewReader("Number,Duration\n1,2\n"))
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"0": ModeQualy, "1": ModeRace, "qualy": ModeQualy, " Race ": ModeRace} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("2")
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.Equal(t, "UNKNOWN", ModeUnknown.String())
}
