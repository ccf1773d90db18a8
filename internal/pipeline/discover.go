// Package pipeline finds datalogger sessions on disk and runs them through
// analysis, reporting and the results store.
package pipeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/monitoring"
	"github.com/kartbox/telemetry/internal/telemetry"
)

const (
	dataPrefix = "data_"
	lapsPrefix = "laps_"
	csvExt     = ".csv"
)

// Session is one data file and, when present, its laps file.
type Session struct {
	ID       string
	DataPath string
	// LapsPath is empty when the session has no laps file.
	LapsPath string
}

func sessionID(path, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), csvExt)
}

// lessID orders numeric ids numerically and everything else lexically,
// numbers first.
func lessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// Discover pairs every data_<id>.csv in dir with laps_<id>.csv. Laps files
// without a data file are logged and ignored.
func Discover(fs fsutil.FileSystem, dir string) ([]Session, error) {
	data, err := fs.Glob(filepath.Join(dir, dataPrefix+"*"+csvExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list data files in %s: %w", dir, err)
	}
	laps, err := fs.Glob(filepath.Join(dir, lapsPrefix+"*"+csvExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list laps files in %s: %w", dir, err)
	}
	lapsByID := make(map[string]string, len(laps))
	for _, p := range laps {
		lapsByID[sessionID(p, lapsPrefix)] = p
	}

	sessions := make([]Session, 0, len(data))
	for _, p := range data {
		id := sessionID(p, dataPrefix)
		if id == "" {
			continue
		}
		s := Session{ID: id, DataPath: p, LapsPath: lapsByID[id]}
		delete(lapsByID, id)
		sessions = append(sessions, s)
	}
	for id, p := range lapsByID {
		monitoring.Logf("pipeline: %s has no data_%s.csv, ignoring", p, id)
	}
	sort.Slice(sessions, func(i, j int) bool { return lessID(sessions[i].ID, sessions[j].ID) })
	return sessions, nil
}

// Load reads a session's files into analysis input. A laps file that cannot
// be read is logged and the session is analyzed as if it had none.
func Load(fs fsutil.FileSystem, s Session) (analysis.SessionInput, telemetry.ReadStats, error) {
	in := analysis.SessionInput{ID: s.ID}
	f, err := fs.Open(s.DataPath)
	if err != nil {
		return in, telemetry.ReadStats{}, fmt.Errorf("failed to open %s: %w", s.DataPath, err)
	}
	samples, stats, err := telemetry.ReadSamples(f)
	f.Close()
	if err != nil {
		return in, stats, fmt.Errorf("%s: %w", filepath.Base(s.DataPath), err)
	}
	in.Samples = samples

	if s.LapsPath == "" {
		return in, stats, nil
	}
	lf, err := fs.Open(s.LapsPath)
	if err != nil {
		monitoring.Session(s.ID)("failed to open %s, continuing without lap times: %v", s.LapsPath, err)
		return in, stats, nil
	}
	defer lf.Close()
	laps, err := telemetry.ReadLaps(lf)
	if err != nil {
		monitoring.Session(s.ID)("%s unreadable, continuing without lap times: %v", filepath.Base(s.LapsPath), err)
		return in, stats, nil
	}
	in.Laps = laps
	return in, stats, nil
}
