package report

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/telemetry"
	"github.com/kartbox/telemetry/internal/units"
)

var (
	colorQualy     = color.RGBA{R: 0xE6, G: 0x7E, B: 0x22, A: 0xFF}
	colorRace      = color.RGBA{R: 0x27, G: 0xAE, B: 0x60, A: 0xFF}
	colorReference = color.RGBA{R: 0x95, G: 0xA5, B: 0xA6, A: 0xFF}
	colorLap       = color.RGBA{R: 0x27, G: 0xAE, B: 0x60, A: 0xFF}
	colorDelta     = color.RGBA{R: 0x29, G: 0x80, B: 0xB9, A: 0xFF}
	colorApex      = color.RGBA{R: 0xE7, G: 0x4C, B: 0x3C, A: 0xFF}
	colorZero      = color.RGBA{A: 0xFF}
)

// Chart sizes.
const (
	wideWidth   = 10 * vg.Inch
	wideHeight  = 4 * vg.Inch
	mapSize     = 6 * vg.Inch
	chartFormat = "png"
)

func modeColor(m telemetry.Mode) color.Color {
	if m == telemetry.ModeRace {
		return colorRace
	}
	return colorQualy
}

// speedColor maps t in [0, 1] onto a red-yellow-green ramp.
func speedColor(t float64) color.Color {
	t = math.Max(0, math.Min(1, t))
	red := [3]float64{0xE7, 0x4C, 0x3C}
	yellow := [3]float64{0xF1, 0xC4, 0x0F}
	green := [3]float64{0x27, 0xAE, 0x60}
	from, to, f := red, yellow, t*2
	if t > 0.5 {
		from, to, f = yellow, green, (t-0.5)*2
	}
	mix := func(i int) uint8 { return uint8(math.Round(from[i] + (to[i]-from[i])*f)) }
	return color.RGBA{R: mix(0), G: mix(1), B: mix(2), A: 0xFF}
}

// renderPNG encodes p as a PNG of the given size.
func renderPNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, chartFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s canvas: %w", chartFormat, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

func legendTopRight(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// EvolutionPlot charts valid lap times against lap number, one series per
// mode.
func EvolutionPlot(rep *analysis.SessionReport) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s lap evolution", rep.ID)
	p.X.Label.Text = "Lap"
	p.Y.Label.Text = "Lap time (s)"
	p.Add(plotter.NewGrid())

	for _, mode := range telemetry.Modes {
		var pts plotter.XYs
		for _, l := range rep.Laps {
			if l.Valid && l.Mode == mode {
				pts = append(pts, plotter.XY{X: float64(l.ID), Y: l.TimeSeconds})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("evolution %s: %w", mode, err)
		}
		line.LineStyle.Color = modeColor(mode)
		line.LineStyle.Width = vg.Points(1.5)
		points.GlyphStyle.Color = modeColor(mode)
		points.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(line, points)
		p.Legend.Add(mode.String(), line, points)
	}
	legendTopRight(p)
	return p, nil
}

func convertAll(speeds []float64, unit string) []float64 {
	out := make([]float64, len(speeds))
	for i, v := range speeds {
		out[i] = units.Convert(v, units.KMPH, unit)
	}
	return out
}

func traceXYs(dist, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(dist))
	for i := range dist {
		pts[i] = plotter.XY{X: dist[i], Y: ys[i]}
	}
	return pts
}

// SpeedPlot overlays a lap's speed trace on the reference lap's, with the
// lap's apex speeds marked and labelled by corner.
func SpeedPlot(rep *analysis.SessionReport, lapID int, unit string) (*plot.Plot, error) {
	lap, ok := rep.Trace(lapID)
	if !ok {
		return nil, fmt.Errorf("lap %d: %w", lapID, analysis.ErrInsufficientData)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lap %d speed trace", lapID)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = fmt.Sprintf("Speed (%s)", units.Label(unit))
	p.Add(plotter.NewGrid())

	if ref, ok := rep.Trace(rep.ReferenceLapID); ok && rep.ReferenceLapID != lapID {
		line, err := plotter.NewLine(traceXYs(ref.Distance, convertAll(ref.Speeds(), unit)))
		if err != nil {
			return nil, fmt.Errorf("reference speed: %w", err)
		}
		line.LineStyle.Color = colorReference
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("Ref (lap %d)", ref.ID), line)
	}

	line, err := plotter.NewLine(traceXYs(lap.Distance, convertAll(lap.Speeds(), unit)))
	if err != nil {
		return nil, fmt.Errorf("lap speed: %w", err)
	}
	line.LineStyle.Color = colorLap
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("Lap %d", lapID), line)

	if lr, ok := rep.Lap(lapID); ok && len(lr.Corners) > 0 {
		apex := make(plotter.XYs, 0, len(lr.Corners))
		labels := make([]string, 0, len(lr.Corners))
		for _, cs := range lr.Corners {
			c, ok := cornerByID(rep.CornerMap, cs.CornerID)
			if !ok {
				continue
			}
			apex = append(apex, plotter.XY{X: c.ReferenceDistance, Y: units.Convert(cs.ApexSpeed, units.KMPH, unit)})
			labels = append(labels, c.Label())
		}
		if err := addMarkers(p, apex, labels, colorApex); err != nil {
			return nil, err
		}
	}
	legendTopRight(p)
	return p, nil
}

// DeltaPlot charts a lap's time delta to the reference against distance.
func DeltaPlot(rep *analysis.SessionReport, lapID int) (*plot.Plot, error) {
	lr, ok := rep.Lap(lapID)
	if !ok || lr.Delta == nil {
		return nil, fmt.Errorf("lap %d has no delta: %w", lapID, analysis.ErrUndefinedReference)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lap %d delta to lap %d", lapID, lr.Delta.ReferenceLapID)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Delta time (s)"
	p.Add(plotter.NewGrid())

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.LineStyle.Color = colorZero
	zero.LineStyle.Width = vg.Points(0.8)
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(zero)

	line, err := plotter.NewLine(traceXYs(lr.Delta.Distance, lr.Delta.DeltaTime))
	if err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	line.LineStyle.Color = colorDelta
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	return p, nil
}

// TrackMapPlot scatters a lap's positions coloured by speed, slow red to
// fast green, and labels the session's corners.
func TrackMapPlot(rep *analysis.SessionReport, lapID int) (*plot.Plot, error) {
	lap, ok := rep.Trace(lapID)
	if !ok {
		return nil, fmt.Errorf("lap %d: %w", lapID, analysis.ErrInsufficientData)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lap %d track map", lapID)
	p.HideAxes()

	pts := make(plotter.XYs, lap.Len())
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range lap.Samples {
		pts[i] = plotter.XY{X: s.Lon, Y: s.Lat}
		lo = math.Min(lo, s.Speed)
		hi = math.Max(hi, s.Speed)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("track map: %w", err)
	}
	span := hi - lo
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		t := 1.0
		if span > 0 {
			t = (lap.Samples[i].Speed - lo) / span
		}
		return draw.GlyphStyle{Color: speedColor(t), Radius: vg.Points(2), Shape: draw.CircleGlyph{}}
	}
	p.Add(scatter)

	if !rep.CornerMap.Empty() {
		corners := make(plotter.XYs, 0, rep.CornerMap.Len())
		labels := make([]string, 0, rep.CornerMap.Len())
		for _, c := range rep.CornerMap.Corners {
			corners = append(corners, plotter.XY{X: c.Lon, Y: c.Lat})
			labels = append(labels, c.Label())
		}
		if err := addMarkers(p, corners, labels, colorZero); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func addMarkers(p *plot.Plot, xys plotter.XYs, labels []string, c color.Color) error {
	if len(xys) == 0 {
		return nil
	}
	marks, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("markers: %w", err)
	}
	marks.GlyphStyle.Color = c
	marks.GlyphStyle.Radius = vg.Points(2.5)
	marks.GlyphStyle.Shape = draw.CircleGlyph{}
	names, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("marker labels: %w", err)
	}
	names.Offset = vg.Point{Y: vg.Points(4)}
	p.Add(marks, names)
	return nil
}

func cornerByID(cm analysis.CornerMap, id int) (analysis.Corner, bool) {
	for _, c := range cm.Corners {
		if c.ID == id {
			return c, true
		}
	}
	return analysis.Corner{}, false
}
