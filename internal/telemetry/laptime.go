package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseLapTime converts a lap time to seconds. Accepted forms are "m:ss.f",
// "h:mm:ss.f" and a bare number of seconds. Anything else returns 0 and an
// error wrapping ErrParseFailure.
func ParseLapTime(text string) (float64, error) {
	t := strings.TrimSpace(text)
	fail := func() (float64, error) {
		return 0, fmt.Errorf("lap time %q: %w", text, ErrParseFailure)
	}
	if t == "" {
		return fail()
	}

	var secs float64
	if strings.Contains(t, ":") {
		parts := strings.Split(t, ":")
		switch len(parts) {
		case 2:
			m, err := strconv.Atoi(parts[0])
			if err != nil {
				return fail()
			}
			s, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return fail()
			}
			secs = float64(m)*60 + s
		case 3:
			h, err := strconv.Atoi(parts[0])
			if err != nil {
				return fail()
			}
			m, err := strconv.Atoi(parts[1])
			if err != nil {
				return fail()
			}
			s, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return fail()
			}
			secs = float64(h)*3600 + float64(m)*60 + s
		default:
			return fail()
		}
	} else {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return fail()
		}
		secs = v
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return fail()
	}
	return secs, nil
}

// FormatLapTime renders seconds as "M:SS.fff".
func FormatLapTime(secs float64) string {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return "-"
	}
	ms := int64(math.Round(secs * 1000))
	return fmt.Sprintf("%d:%06.3f", ms/60000, float64(ms%60000)/1000)
}
