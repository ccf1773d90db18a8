package report

import (
	"bytes"
	"fmt"
	"io"

	"codeberg.org/go-pdf/fpdf"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/telemetry"
	"github.com/kartbox/telemetry/internal/units"
)

const (
	pageMargin     = 15.0
	contentWidth   = 180.0
	chartHeight    = contentWidth * 4 / 10
	mapHeight      = 110.0
	cornersPerRow  = 8
	debriefCorners = 8
	rankingRows    = 10
	// Apex deltas beyond this many km/h either side of the reference are
	// highlighted in the corner table.
	apexHighlight = 0.5
)

// Header band colours.
var (
	bandFill = [3]int{44, 62, 80}
	gain     = [3]int{46, 204, 113}
	loss     = [3]int{231, 76, 60}
)

// chartSet holds the rendered PNG charts a PDF embeds. Missing charts are
// left out of the document.
type chartSet struct {
	evolution []byte
	trackMap  []byte
	trackLap  int
	laps      map[int]lapCharts
}

type lapCharts struct {
	speed []byte
	delta []byte
}

type pdfDoc struct {
	*fpdf.Fpdf
	rep  *analysis.SessionReport
	unit string
}

// writePDF lays out the session debrief, the evolution chart, one page per
// analyzed lap and the final ranking.
func writePDF(w io.Writer, rep *analysis.SessionReport, unit string, charts chartSet) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetTitle(fmt.Sprintf("Session %s debrief", rep.ID), false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(127, 127, 127)
		pdf.CellFormat(0, 8, fmt.Sprintf("Session %s - page %d/{nb}", rep.ID, pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	d := &pdfDoc{Fpdf: pdf, rep: rep, unit: unit}
	d.debrief()
	d.charts(charts)
	for _, l := range rep.Laps {
		if l.Analyzed {
			d.lapPage(l, charts.laps[l.ID])
		}
	}
	d.ranking()

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to lay out pdf: %w", err)
	}
	return pdf.Output(w)
}

func (d *pdfDoc) band(title string, size float64) {
	d.SetFillColor(bandFill[0], bandFill[1], bandFill[2])
	d.SetTextColor(255, 255, 255)
	d.SetFont("Helvetica", "B", size)
	d.CellFormat(0, 12, " "+title, "", 1, "L", true, 0, "")
	d.SetTextColor(0, 0, 0)
	d.Ln(4)
}

func (d *pdfDoc) heading(text string) {
	d.Ln(3)
	d.SetFont("Helvetica", "B", 12)
	d.CellFormat(0, 9, text, "", 1, "L", false, 0, "")
	d.SetFont("Helvetica", "", 11)
}

func (d *pdfDoc) line(h float64, text string) {
	d.SetX(pageMargin)
	d.MultiCell(0, h, text, "", "L", false)
}

func (d *pdfDoc) speed(kmph float64) string {
	return fmt.Sprintf("%.1f %s", units.Convert(kmph, units.KMPH, d.unit), units.Label(d.unit))
}

func (d *pdfDoc) debrief() {
	rep := d.rep
	d.AddPage()
	d.band(fmt.Sprintf("TRACK ENGINEER DEBRIEF - SESSION %s", rep.ID), 14)
	d.SetFont("Helvetica", "", 11)

	if rep.FastestLap != nil {
		d.line(8, fmt.Sprintf("> RECORD: lap %d in %s (%s).",
			rep.FastestLap.LapID, telemetry.FormatLapTime(rep.FastestLap.TimeSeconds), rep.FastestLap.Mode))
	} else {
		d.line(8, "> RECORD: no lap carries a valid time.")
	}
	switch {
	case rep.IdealLapError != "":
		d.line(8, fmt.Sprintf("> IDEAL LAP: unavailable (%s).", rep.IdealLapError))
	case rep.FastestLap != nil:
		d.line(8, fmt.Sprintf("> IDEAL LAP: %.3fs. %.3fs is lost only to inconsistency between sectors.",
			rep.IdealLap, rep.TimeLost))
	default:
		d.line(8, fmt.Sprintf("> IDEAL LAP: %.3fs.", rep.IdealLap))
	}

	if len(rep.BestSectors) > 0 {
		d.heading(fmt.Sprintf("BEST SECTORS (%s)", rep.Strategy))
		d.SetFont("Helvetica", "", 10)
		perRow := 4
		cw := contentWidth / float64(perRow)
		for i, b := range rep.BestSectors {
			text := fmt.Sprintf("S%d: -", b.Segment)
			if !b.Missing {
				text = fmt.Sprintf("S%d: %.3fs (L%d)", b.Segment, b.Seconds, b.LapID)
			}
			ln := 0
			if (i+1)%perRow == 0 || i == len(rep.BestSectors)-1 {
				ln = 1
			}
			d.CellFormat(cw, 8, text, "1", ln, "C", false, 0, "")
		}
	}

	d.heading("CONSISTENCY INSIGHTS")
	c := rep.Consistency
	switch {
	case !c.Computed:
		d.line(7, fmt.Sprintf("- Only %d timed laps; lap-time consistency needs at least 3.", c.LapCount))
	case c.Signal == analysis.SignalElite:
		d.line(7, fmt.Sprintf("- Lap times spread by %.3fs: elite consistency.", c.LapTimeStdDev))
	case c.Signal == analysis.SignalOscillation:
		d.line(7, fmt.Sprintf("- Lap times spread by %.3fs: pace oscillates between laps.", c.LapTimeStdDev))
	default:
		d.line(7, fmt.Sprintf("- Lap times spread by %.3fs.", c.LapTimeStdDev))
	}
	for i, cc := range c.Corners {
		if i == debriefCorners {
			break
		}
		advice := "Solid line."
		if cc.Inconsistent {
			advice = "Focus on stabilising here!"
		}
		d.line(7, fmt.Sprintf("- C%d: apex speed varies by %s. %s", cc.CornerID, d.speed(cc.StdDev), advice))
	}

	if n := len(rep.Skips); n > 0 || rep.DeltaError != "" {
		d.heading("NOTES")
		if rep.DeltaError != "" {
			d.line(7, fmt.Sprintf("- No time deltas: %s.", rep.DeltaError))
		}
		if n > 0 {
			d.line(7, fmt.Sprintf("- %d unit(s) of work skipped; see session.json.", n))
		}
	}
}

func (d *pdfDoc) image(name string, png []byte, h float64) {
	if len(png) == 0 {
		return
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	d.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	d.ImageOptions(name, pageMargin, d.GetY(), contentWidth, h, true, opts, 0, "")
	d.Ln(2)
}

func (d *pdfDoc) charts(c chartSet) {
	if len(c.evolution) == 0 && len(c.trackMap) == 0 {
		return
	}
	d.AddPage()
	d.band("LAP EVOLUTION", 14)
	d.image("evolution", c.evolution, chartHeight)
	if len(c.trackMap) > 0 {
		d.heading(fmt.Sprintf("TRACK MAP (LAP %d)", c.trackLap))
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		d.RegisterImageOptionsReader("trackmap", opts, bytes.NewReader(c.trackMap))
		d.ImageOptions("trackmap", pageMargin+(contentWidth-mapHeight)/2, d.GetY(), mapHeight, mapHeight, true, opts, 0, "")
	}
}

func (d *pdfDoc) lapPage(l analysis.LapResult, c lapCharts) {
	d.AddPage()
	title := fmt.Sprintf("LAP %d | %s | %s", l.ID, lapTimeText(l), l.Mode)
	if l.Reference {
		title += " | REFERENCE"
	}
	d.band(title, 13)
	if l.Delta != nil && !l.Reference {
		d.SetFont("Helvetica", "", 10)
		d.line(6, fmt.Sprintf("Delta to lap %d at the line: %+.3fs. Max speed %s.",
			l.Delta.ReferenceLapID, l.Delta.Final(), d.speed(l.MaxSpeed)))
	}
	d.image(fmt.Sprintf("lap%d-speed", l.ID), c.speed, chartHeight)
	d.image(fmt.Sprintf("lap%d-delta", l.ID), c.delta, chartHeight)
	d.cornerTable(l.Corners)
}

func lapTimeText(l analysis.LapResult) string {
	if !l.Valid {
		return "no time"
	}
	return telemetry.FormatLapTime(l.TimeSeconds)
}

func signed(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.1f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func (d *pdfDoc) cornerTable(corners []analysis.CornerSpeed) {
	if len(corners) == 0 {
		return
	}
	cw := contentWidth / cornersPerRow
	conv := func(v float64) float64 { return units.Convert(v, units.KMPH, d.unit) }
	for start := 0; start < len(corners); start += cornersPerRow {
		row := corners[start:min(start+cornersPerRow, len(corners))]

		d.SetX(pageMargin)
		d.SetFont("Helvetica", "B", 8)
		d.SetFillColor(240, 240, 240)
		for _, cs := range row {
			d.CellFormat(cw, 5.5, fmt.Sprintf("C%d", cs.CornerID), "1", 0, "C", true, 0, "")
		}
		d.Ln(-1)

		d.SetX(pageMargin)
		d.SetFont("Helvetica", "", 7)
		for _, cs := range row {
			d.CellFormat(cw, 4.5, fmt.Sprintf("In: %.1f", conv(cs.EntrySpeed)), "1", 0, "C", false, 0, "")
		}
		d.Ln(-1)

		d.SetX(pageMargin)
		d.SetFont("Helvetica", "B", 7)
		for _, cs := range row {
			switch {
			case cs.ApexDelta > apexHighlight:
				d.SetTextColor(gain[0], gain[1], gain[2])
			case cs.ApexDelta < -apexHighlight:
				d.SetTextColor(loss[0], loss[1], loss[2])
			default:
				d.SetTextColor(0, 0, 0)
			}
			d.CellFormat(cw, 5, fmt.Sprintf("Ap: %.1f", conv(cs.ApexSpeed)), "1", 0, "C", false, 0, "")
		}
		d.SetTextColor(0, 0, 0)
		d.Ln(-1)

		d.SetX(pageMargin)
		d.SetFont("Helvetica", "", 7)
		for _, cs := range row {
			d.CellFormat(cw, 4, signed(conv(cs.ApexDelta)), "1", 0, "C", false, 0, "")
		}
		d.Ln(6)
	}
}

func (d *pdfDoc) ranking() {
	d.AddPage()
	d.band("FINAL RANKING AND SESSION SUMMARY", 14)
	if len(d.rep.Ranking) == 0 {
		d.SetFont("Helvetica", "", 11)
		d.line(8, "No lap carries a valid time.")
		return
	}
	d.heading(fmt.Sprintf("TOP %d LAPS", min(rankingRows, len(d.rep.Ranking))))
	headers := []string{"RANK", "LAP", "MODE", "TIME", "MAX SPEED"}
	cw := contentWidth / float64(len(headers))
	d.SetFont("Helvetica", "B", 10)
	d.SetFillColor(230, 230, 230)
	for _, h := range headers {
		d.CellFormat(cw, 9, h, "1", 0, "C", true, 0, "")
	}
	d.Ln(-1)
	d.SetFont("Helvetica", "", 10)
	for i, r := range d.rep.Ranking {
		if i == rankingRows {
			break
		}
		d.CellFormat(cw, 8, fmt.Sprintf("%d", r.Rank), "1", 0, "C", false, 0, "")
		d.CellFormat(cw, 8, fmt.Sprintf("%d", r.LapID), "1", 0, "C", false, 0, "")
		d.CellFormat(cw, 8, r.Mode.String(), "1", 0, "C", false, 0, "")
		d.CellFormat(cw, 8, telemetry.FormatLapTime(r.TimeSeconds), "1", 0, "C", false, 0, "")
		d.CellFormat(cw, 8, d.speed(r.MaxSpeed), "1", 1, "C", false, 0, "")
	}
}
