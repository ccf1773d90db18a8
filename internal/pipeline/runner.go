package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kartbox/telemetry/internal/analysis"
	"github.com/kartbox/telemetry/internal/db"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/monitoring"
	"github.com/kartbox/telemetry/internal/report"
	"github.com/kartbox/telemetry/internal/telemetry"
	"github.com/kartbox/telemetry/internal/timeutil"
	"github.com/kartbox/telemetry/internal/version"
)

// DefaultWorkers is used when Runner.Workers is not positive.
const DefaultWorkers = 4

// Store receives run and session results. *db.DB satisfies it.
type Store interface {
	RecordRun(ctx context.Context, run db.Run) error
	RecordSession(ctx context.Context, rec db.SessionRecord) error
}

// Reporter writes a session's report files. *report.Reporter satisfies it.
type Reporter interface {
	Write(rep *analysis.SessionReport) (report.Output, error)
}

// Runner analyzes sessions concurrently. Store and Reporter are optional.
type Runner struct {
	FS       fsutil.FileSystem
	Engine   *analysis.Engine
	Store    Store
	Reporter Reporter
	Workers  int
	Clock    timeutil.Clock
}

// SessionResult is the outcome of one session.
type SessionResult struct {
	ID     string
	Status analysis.Status
	Stats  telemetry.ReadStats
	// Report is nil when the session's files could not be read.
	Report *analysis.SessionReport
	Output report.Output
	// Err is why the session failed, or for a failed report write, why its
	// files are incomplete.
	Err error
}

// RunSummary is the outcome of a whole run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []SessionResult
	OK         int
	Degraded   int
	Failed     int
}

// AllFailed reports whether the run had sessions and none of them produced
// a result.
func (s RunSummary) AllFailed() bool {
	return len(s.Results) > 0 && s.Failed == len(s.Results)
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) record(ctx context.Context, what string, fn func(context.Context) error) {
	if r.Store == nil {
		return
	}
	// Results are still recorded after cancellation so the run row closes.
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		monitoring.Logf("pipeline: failed to record %s: %v", what, err)
	}
}

// Run analyzes every session with at most Workers in flight. Results keep
// the order of sessions. A session's failure never stops the others; the
// returned error is only set when ctx ends before every session started.
func (r *Runner) Run(ctx context.Context, sessions []Session) (RunSummary, error) {
	clock := r.clock()
	sum := RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: clock.Now(),
		Results:   make([]SessionResult, len(sessions)),
	}
	run := db.Run{
		ID:        sum.RunID,
		StartedAt: sum.StartedAt,
		Version:   version.Version,
		Params:    r.Engine.Params(),
		Sessions:  len(sessions),
	}
	r.record(ctx, "run "+sum.RunID, func(ctx context.Context) error { return r.Store.RecordRun(ctx, run) })
	monitoring.Logf("pipeline: run %s started with %d session(s)", sum.RunID, len(sessions))

	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for i, s := range sessions {
		if gctx.Err() != nil {
			sum.Results[i] = SessionResult{ID: s.ID, Status: analysis.StatusFailed, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			res := r.process(s)
			r.record(gctx, "session "+s.ID, func(ctx context.Context) error {
				return r.Store.RecordSession(ctx, db.SessionRecord{
					RunID:      sum.RunID,
					SessionID:  s.ID,
					Report:     res.Report,
					Err:        res.failure(),
					RecordedAt: clock.Now(),
				})
			})
			mu.Lock()
			sum.Results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range sum.Results {
		switch res.Status {
		case analysis.StatusOK:
			sum.OK++
		case analysis.StatusDegraded:
			sum.Degraded++
		default:
			sum.Failed++
		}
	}
	sum.FinishedAt = clock.Now()
	run.FinishedAt = sum.FinishedAt
	run.OK, run.Degraded, run.Failed = sum.OK, sum.Degraded, sum.Failed
	r.record(ctx, "run "+sum.RunID, func(ctx context.Context) error { return r.Store.RecordRun(ctx, run) })
	monitoring.Logf("pipeline: run %s finished: %d ok, %d degraded, %d failed in %s",
		sum.RunID, sum.OK, sum.Degraded, sum.Failed, sum.FinishedAt.Sub(sum.StartedAt))
	return sum, ctx.Err()
}

// failure is the error stored with the session, nil unless it failed.
func (res SessionResult) failure() error {
	if res.Status == analysis.StatusFailed {
		return res.Err
	}
	return nil
}

// process loads, analyzes and reports one session. Panics become failures.
func (r *Runner) process(s Session) (res SessionResult) {
	res = SessionResult{ID: s.ID, Status: analysis.StatusFailed}
	logf := monitoring.Session(s.ID)
	defer func() {
		if p := recover(); p != nil {
			logf("panic: %v\n%s", p, debug.Stack())
			res.Status = analysis.StatusFailed
			res.Err = fmt.Errorf("session %s: panic: %v", s.ID, p)
		}
	}()

	in, stats, err := Load(r.FS, s)
	res.Stats = stats
	if err != nil {
		logf("%v", err)
		res.Err = err
		return res
	}

	rep, err := r.Engine.AnalyzeSession(in)
	res.Report = rep
	if rep != nil {
		res.Status = rep.Status
	}
	if err != nil {
		res.Status = analysis.StatusFailed
		res.Err = err
		return res
	}

	if r.Reporter != nil {
		out, err := r.Reporter.Write(rep)
		res.Output = out
		if err != nil {
			logf("report incomplete: %v", err)
			res.Err = errors.Join(res.Err, err)
		}
	}
	logf("%s: %d lap(s), %d corner(s), %d skip(s)", res.Status, len(rep.Laps), rep.CornerMap.Len(), len(rep.Skips))
	return res
}
