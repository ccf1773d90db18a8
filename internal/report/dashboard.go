package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/telemetry"
)

// outlineTolerance is the Douglas-Peucker threshold for the track outline,
// in degrees (roughly one metre).
const outlineTolerance = 1e-5

// deltaPalette cycles through the per-lap delta lines.
var deltaPalette = []string{"#2980B9", "#8E44AD", "#16A085", "#D35400", "#2C3E50", "#C0392B", "#27AE60", "#F39C12"}

func hexColor(m telemetry.Mode) string {
	if m == telemetry.ModeRace {
		return "#27AE60"
	}
	return "#E67E22"
}

// outlineLap picks the lap drawn as the track outline: the reference when
// there is one, otherwise the first analyzed lap.
func outlineLap(rep *analysis.SessionReport) (analysis.LapTrace, bool) {
	if t, ok := rep.Trace(rep.ReferenceLapID); ok {
		return t, true
	}
	if len(rep.Traces) == 0 {
		return analysis.LapTrace{}, false
	}
	return rep.Traces[0], true
}

// SimplifyOutline reduces a lap's GPS path to the points that matter for
// drawing it.
func SimplifyOutline(lap analysis.LapTrace, tolerance float64) orb.LineString {
	ls := make(orb.LineString, 0, lap.Len())
	for _, s := range lap.Samples {
		ls = append(ls, orb.Point{s.Lon, s.Lat})
	}
	return simplify.DouglasPeucker(tolerance).LineString(ls)
}

func (r *Reporter) initOpts(title string) charts.GlobalOpts {
	init := opts.Initialization{PageTitle: title, Width: "1100px", Height: "520px"}
	if r.opts.AssetsHost != "" {
		init.AssetsHost = r.opts.AssetsHost
	}
	return charts.WithInitializationOpts(init)
}

func (r *Reporter) trackChart(rep *analysis.SessionReport) *charts.Line {
	lap, ok := outlineLap(rep)
	if !ok {
		return nil
	}
	outline := SimplifyOutline(lap, outlineTolerance)
	data := make([]opts.LineData, 0, len(outline))
	for _, p := range outline {
		data = append(data, opts.LineData{Value: []interface{}{p.Lon(), p.Lat()}})
	}

	marks := make([]opts.MarkPointNameCoordItem, 0, rep.CornerMap.Len())
	for _, c := range rep.CornerMap.Corners {
		marks = append(marks, opts.MarkPointNameCoordItem{
			Name:       c.Label(),
			Coordinate: []interface{}{c.Lon, c.Lat},
			Value:      c.Label(),
		})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		r.initOpts(fmt.Sprintf("Session %s", rep.ID)),
		charts.WithTitleOpts(opts.Title{Title: "Track outline", Subtitle: fmt.Sprintf("lap %d, %d of %d points", lap.ID, len(outline), lap.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Longitude", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Latitude", NameLocation: "middle", NameGap: 50, Scale: opts.Bool(true)}),
	)
	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "#2C3E50", Width: 2}),
	}
	if len(marks) > 0 {
		seriesOpts = append(seriesOpts, charts.WithMarkPointNameCoordItemOpts(marks...))
	}
	line.AddSeries(fmt.Sprintf("Lap %d", lap.ID), data, seriesOpts...)
	return line
}

func (r *Reporter) deltaChart(rep *analysis.SessionReport) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		r.initOpts(fmt.Sprintf("Session %s", rep.ID)),
		charts.WithTitleOpts(opts.Title{Title: "Delta to reference", Subtitle: fmt.Sprintf("reference lap %d", rep.ReferenceLapID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Delta (s)", NameLocation: "middle", NameGap: 40}),
	)
	n := 0
	for _, l := range rep.Laps {
		if l.Delta == nil || l.Reference {
			continue
		}
		data := make([]opts.LineData, len(l.Delta.Distance))
		for i := range l.Delta.Distance {
			data[i] = opts.LineData{Value: []interface{}{l.Delta.Distance[i], l.Delta.DeltaTime[i]}}
		}
		line.AddSeries(fmt.Sprintf("Lap %d", l.ID), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: deltaPalette[n%len(deltaPalette)], Width: 1.5}),
		)
		n++
	}
	if n == 0 {
		return nil
	}
	return line
}

func (r *Reporter) evolutionChart(rep *analysis.SessionReport) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		r.initOpts(fmt.Sprintf("Session %s", rep.ID)),
		charts.WithTitleOpts(opts.Title{Title: "Lap evolution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Lap", NameLocation: "middle", NameGap: 25, MinInterval: 1}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Lap time (s)", NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
	)
	n := 0
	for _, mode := range telemetry.Modes {
		var data []opts.LineData
		for _, l := range rep.Laps {
			if l.Valid && l.Mode == mode {
				data = append(data, opts.LineData{Value: []interface{}{l.ID, l.TimeSeconds}})
			}
		}
		if len(data) == 0 {
			continue
		}
		line.AddSeries(mode.String(), data,
			charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(mode), Width: 2}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(mode)}),
		)
		n++
	}
	if n == 0 {
		return nil
	}
	return line
}

// writeDashboard renders the interactive session page. Charts without data
// are left out.
func (r *Reporter) writeDashboard(w io.Writer, rep *analysis.SessionReport) error {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Session %s", rep.ID))
	if r.opts.AssetsHost != "" {
		page.SetAssetsHost(r.opts.AssetsHost)
	}
	if c := r.trackChart(rep); c != nil {
		page.AddCharts(c)
	}
	if c := r.deltaChart(rep); c != nil {
		page.AddCharts(c)
	}
	if c := r.evolutionChart(rep); c != nil {
		page.AddCharts(c)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}
