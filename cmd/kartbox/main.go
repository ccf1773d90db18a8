// Command kartbox analyzes every datalogger session in a directory and writes
// per-session reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/config"
	"github.com/kartbox/telemetry/internal/db"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/pipeline"
	"github.com/kartbox/telemetry/internal/report"
	"github.com/kartbox/telemetry/internal/units"
	"github.com/kartbox/telemetry/internal/version"
)

var (
	inputDir    = flag.String("dir", ".", "Directory containing data_<id>.csv and laps_<id>.csv files")
	outDir      = flag.String("out", "reports", "Directory reports are written to")
	configPath  = flag.String("config", "", "Analysis config file (.json, .yaml or .yml)")
	dbPath      = flag.String("db", "kartbox.db", "Results database path (empty disables)")
	workers     = flag.Int("workers", 0, "Sessions analyzed at once (0 uses the config value)")
	writePDF    = flag.Bool("pdf", true, "Write the PDF report")
	writeHTML   = flag.Bool("html", true, "Write the interactive HTML dashboard")
	writePlots  = flag.Bool("plots", true, "Write PNG charts")
	speedUnits  = flag.String("units", "", "Report speed units: "+units.GetValidUnitsString())
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("kartbox"))
		return
	}
	os.Exit(run())
}

func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.EmptyAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

// resolveSettings applies command-line overrides on top of the config file.
func resolveSettings(cfg *config.AnalysisConfig, unitFlag string, workerFlag int) (string, int) {
	u := cfg.GetUnits()
	if unitFlag != "" {
		u = unitFlag
	}
	w := cfg.GetWorkers()
	if workerFlag > 0 {
		w = workerFlag
	}
	return u, w
}

func run() int {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	unit, nWorkers := resolveSettings(cfg, *speedUnits, *workers)

	engine, err := analysis.NewEngine(cfg.Params())
	if err != nil {
		log.Fatalf("invalid analysis parameters: %v", err)
	}

	fs := fsutil.OSFileSystem{}
	reporter, err := report.NewReporter(fs, *outDir, report.Options{
		Units: unit,
		PDF:   *writePDF,
		HTML:  *writeHTML,
		Plots: *writePlots,
	})
	if err != nil {
		log.Fatalf("failed to create reporter: %v", err)
	}

	sessions, err := pipeline.Discover(fs, *inputDir)
	if err != nil {
		log.Fatalf("failed to scan %s: %v", *inputDir, err)
	}
	if len(sessions) == 0 {
		log.Printf("no sessions found in %s", *inputDir)
		return 0
	}

	runner := &pipeline.Runner{
		FS:       fs,
		Engine:   engine,
		Reporter: reporter,
		Workers:  nWorkers,
	}
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open results database: %v", err)
		}
		defer database.Close()
		runner.Store = database
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := runner.Run(ctx, sessions)
	if err != nil {
		log.Printf("run interrupted: %v", err)
	}
	printSummary(os.Stdout, sum, unit)

	if sum.AllFailed() {
		return 1
	}
	return 0
}

func printSummary(w io.Writer, sum pipeline.RunSummary, unit string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SESSION\tSTATUS\tLAPS\tFASTEST\tIDEAL\tTOP SPEED (%s)\tOUTPUT\n", units.Label(unit))
	for _, res := range sum.Results {
		laps, fastest, ideal, top := "-", "-", "-", "-"
		if rep := res.Report; rep != nil {
			laps = fmt.Sprint(len(rep.Traces))
			if rep.FastestLap != nil {
				fastest = fmt.Sprintf("%s (lap %d)", rep.FastestLap.TimeText, rep.FastestLap.LapID)
				top = fmt.Sprintf("%.1f", units.Convert(rep.FastestLap.MaxSpeed, units.KMPH, unit))
			}
			if rep.IdealLapError == "" && rep.IdealLap > 0 {
				ideal = fmt.Sprintf("%.3fs", rep.IdealLap)
			}
		}
		out := res.Output.Dir
		if res.Err != nil {
			out = res.Err.Error()
		}
		if out == "" {
			out = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", res.ID, res.Status, laps, fastest, ideal, top, out)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nrun %s: %d ok, %d degraded, %d failed in %s\n",
		sum.RunID, sum.OK, sum.Degraded, sum.Failed, sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
}
