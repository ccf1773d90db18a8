// Package report renders an analyzed session to disk: a JSON summary, PNG
// charts, a printable PDF debrief and an interactive HTML dashboard.
package report

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/monitoring"
	"github.com/kartbox/telemetry/internal/security"
	"github.com/kartbox/telemetry/internal/units"
)

// Output file names inside a session directory.
const (
	SummaryFile   = "session.json"
	PDFFile       = "report.pdf"
	DashboardFile = "dashboard.html"
	EvolutionFile = "evolution.png"
	TrackMapFile  = "track_map.png"
	LapsDir       = "laps"
)

// Options selects which artefacts are written besides the JSON summary.
type Options struct {
	// Units is the speed unit used in charts and tables; empty means km/h.
	Units string
	PDF   bool
	HTML  bool
	Plots bool
	// AssetsHost overrides where the dashboard loads its scripts from.
	AssetsHost string
}

// Output lists what was written for one session.
type Output struct {
	Dir   string
	Files []string
}

// Reporter writes session reports under one output directory.
type Reporter struct {
	fs     fsutil.FileSystem
	outDir string
	opts   Options
}

// NewReporter returns a Reporter writing through fs into outDir.
func NewReporter(fs fsutil.FileSystem, outDir string, o Options) (*Reporter, error) {
	if o.Units == "" {
		o.Units = units.KMPH
	}
	if !units.IsValid(o.Units) {
		return nil, fmt.Errorf("invalid units %q, must be one of: %s", o.Units, units.GetValidUnitsString())
	}
	return &Reporter{fs: fs, outDir: outDir, opts: o}, nil
}

// SessionDir returns the directory a session's files are written to. An id
// that is not already a safe path component is reduced to one and suffixed
// with a hash of the original, so distinct ids never share a directory.
func (r *Reporter) SessionDir(id string) string {
	name := security.SafeName(id)
	if name != id {
		h := fnv.New32a()
		h.Write([]byte(id))
		name = fmt.Sprintf("%s-%08x", name, h.Sum32())
	}
	return filepath.Join(r.outDir, "session_"+name)
}

// LapChartName returns the file name of a per-lap chart, relative to the
// session directory.
func LapChartName(lapID int, kind string) string {
	return filepath.Join(LapsDir, fmt.Sprintf("lap_%d_%s.png", lapID, kind))
}

type sessionWriter struct {
	r   *Reporter
	dir string
	out Output
}

func (w *sessionWriter) write(name string, data []byte) error {
	path := filepath.Join(w.dir, name)
	if err := w.r.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := w.r.fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.out.Files = append(w.out.Files, path)
	return nil
}

func (w *sessionWriter) render(name string, fn func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}
	return w.write(name, buf.Bytes())
}

// Write renders every enabled artefact for rep. A chart that cannot be
// drawn is logged and left out; any write failure is returned.
func (r *Reporter) Write(rep *analysis.SessionReport) (Output, error) {
	w := &sessionWriter{r: r, dir: r.SessionDir(rep.ID)}
	w.out.Dir = w.dir
	logf := monitoring.Session(rep.ID)

	if err := w.render(SummaryFile, func(out io.Writer) error { return writeSummary(out, rep) }); err != nil {
		return w.out, err
	}

	var set chartSet
	if r.opts.Plots || r.opts.PDF {
		set = r.renderCharts(rep, logf)
	}
	if r.opts.Plots {
		if err := w.writeCharts(set); err != nil {
			return w.out, err
		}
	}
	if r.opts.PDF {
		err := w.render(PDFFile, func(out io.Writer) error { return writePDF(out, rep, r.opts.Units, set) })
		if err != nil {
			return w.out, err
		}
	}
	if r.opts.HTML {
		if err := w.render(DashboardFile, func(out io.Writer) error { return r.writeDashboard(out, rep) }); err != nil {
			return w.out, err
		}
	}
	logf("wrote %d report file(s) to %s", len(w.out.Files), w.dir)
	return w.out, nil
}

func (w *sessionWriter) writeCharts(set chartSet) error {
	if len(set.evolution) > 0 {
		if err := w.write(EvolutionFile, set.evolution); err != nil {
			return err
		}
	}
	if len(set.trackMap) > 0 {
		if err := w.write(TrackMapFile, set.trackMap); err != nil {
			return err
		}
	}
	ids := make([]int, 0, len(set.laps))
	for id := range set.laps {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := set.laps[id]
		if len(c.speed) > 0 {
			if err := w.write(LapChartName(id, "speed"), c.speed); err != nil {
				return err
			}
		}
		if len(c.delta) > 0 {
			if err := w.write(LapChartName(id, "delta"), c.delta); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderCharts draws every chart the report can show. Failures only drop
// the affected chart.
func (r *Reporter) renderCharts(rep *analysis.SessionReport, logf func(string, ...interface{})) chartSet {
	set := chartSet{laps: make(map[int]lapCharts)}
	chart := func(name string, build func() (*plot.Plot, error), w, h vg.Length) []byte {
		p, err := build()
		if err != nil {
			logf("skipping %s chart: %v", name, err)
			return nil
		}
		png, err := renderPNG(p, w, h)
		if err != nil {
			logf("skipping %s chart: %v", name, err)
			return nil
		}
		return png
	}

	if rep.FastestLap != nil {
		set.evolution = chart("evolution", func() (*plot.Plot, error) { return EvolutionPlot(rep) }, wideWidth, wideHeight)
	}
	if lap, ok := outlineLap(rep); ok {
		set.trackLap = lap.ID
		set.trackMap = chart("track map", func() (*plot.Plot, error) { return TrackMapPlot(rep, lap.ID) }, mapSize, mapSize)
	}
	for _, l := range rep.Laps {
		if !l.Analyzed {
			continue
		}
		var c lapCharts
		c.speed = chart(fmt.Sprintf("lap %d speed", l.ID), func() (*plot.Plot, error) { return SpeedPlot(rep, l.ID, r.opts.Units) }, wideWidth, wideHeight)
		if l.Delta != nil && !l.Reference {
			c.delta = chart(fmt.Sprintf("lap %d delta", l.ID), func() (*plot.Plot, error) { return DeltaPlot(rep, l.ID) }, wideWidth, wideHeight)
		}
		set.laps[l.ID] = c
	}
	return set
}
