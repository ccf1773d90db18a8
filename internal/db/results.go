package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kartbox/telemetry/internal/analysis"
)

// Run is one batch invocation over a set of sessions.
type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
	Version    string          `json:"version"`
	Params     analysis.Params `json:"params"`
	Sessions   int             `json:"sessions"`
	OK         int             `json:"ok"`
	Degraded   int             `json:"degraded"`
	Failed     int             `json:"failed"`
}

// SessionRecord is what the pipeline hands the store for one session.
// Report may be nil when the session's files could not be read. A non-nil
// Err records the session as failed whatever the report's status.
type SessionRecord struct {
	RunID      string
	SessionID  string
	Report     *analysis.SessionReport
	Err        error
	RecordedAt time.Time
}

// SessionSummary is the headline row of one recorded session.
type SessionSummary struct {
	RunID          string    `json:"run_id"`
	SessionID      string    `json:"session_id"`
	Status         string    `json:"status"`
	SampleCount    int       `json:"sample_count"`
	MovingCount    int       `json:"moving_count"`
	LapCount       int       `json:"lap_count"`
	CornerCount    int       `json:"corner_count"`
	SectorStrategy string    `json:"sector_strategy"`
	IdealLap       *float64  `json:"ideal_lap,omitempty"`
	FastestLapID   *int      `json:"fastest_lap_id,omitempty"`
	FastestLapTime *float64  `json:"fastest_lap_time,omitempty"`
	TimeLost       *float64  `json:"time_lost,omitempty"`
	ReferenceLapID *int      `json:"reference_lap_id,omitempty"`
	LapTimeStdDev  *float64  `json:"lap_time_std_dev,omitempty"`
	Signal         string    `json:"consistency_signal,omitempty"`
	Error          string    `json:"error,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

type LapRow struct {
	LapID       int      `json:"lap_id"`
	Mode        string   `json:"mode"`
	TimeText    string   `json:"time_text"`
	TimeSeconds float64  `json:"time_seconds"`
	Valid       bool     `json:"valid"`
	Analyzed    bool     `json:"analyzed"`
	Reference   bool     `json:"reference"`
	Samples     int      `json:"samples"`
	MaxSpeed    float64  `json:"max_speed"`
	FinalDelta  *float64 `json:"final_delta,omitempty"`
}

type CornerRow struct {
	CornerID          int      `json:"corner_id"`
	ReferenceDistance float64  `json:"reference_distance"`
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	Direction         string   `json:"direction"`
	Members           int      `json:"members"`
	ApexStdDev        *float64 `json:"apex_std_dev,omitempty"`
}

type SectorRow struct {
	LapID   int     `json:"lap_id"`
	Segment int     `json:"segment"`
	Seconds float64 `json:"seconds"`
}

type CornerSpeedRow struct {
	LapID      int     `json:"lap_id"`
	CornerID   int     `json:"corner_id"`
	EntrySpeed float64 `json:"entry_speed"`
	ApexSpeed  float64 `json:"apex_speed"`
	ApexDelta  float64 `json:"apex_delta"`
}

// SessionDetail is a recorded session with all of its rows.
type SessionDetail struct {
	SessionSummary
	Laps         []LapRow         `json:"laps"`
	Corners      []CornerRow      `json:"corners"`
	Sectors      []SectorRow      `json:"sectors"`
	CornerSpeeds []CornerSpeedRow `json:"corner_speeds"`
}

// RecordRun inserts or updates a run row.
func (db *DB) RecordRun(ctx context.Context, run Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	var finished sql.NullInt64
	if !run.FinishedAt.IsZero() {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, started_unix_ms, finished_unix_ms, version, params_json,
			sessions, ok, degraded, failed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_unix_ms = excluded.finished_unix_ms,
			sessions = excluded.sessions,
			ok = excluded.ok,
			degraded = excluded.degraded,
			failed = excluded.failed`,
		run.ID, run.StartedAt.UnixMilli(), finished, run.Version, string(params),
		run.Sessions, run.OK, run.Degraded, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_unix_ms, finished_unix_ms, version, params_json,
			sessions, ok, degraded, failed
		FROM analysis_runs ORDER BY started_unix_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			params   string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Version, &params,
			&r.Sessions, &r.OK, &r.Degraded, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("run %s: failed to decode params: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordSession stores one session's results in a single transaction,
// replacing anything previously recorded for the same run and session.
func (db *DB) RecordSession(ctx context.Context, rec SessionRecord) (err error) {
	rep := rec.Report
	if rep == nil {
		rep = &analysis.SessionReport{ID: rec.SessionID, Status: analysis.StatusFailed}
	}
	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = rep.ID
	}
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report for session %s: %w", sessionID, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"sessions", "session_laps", "session_corners", "sector_times", "corner_speeds"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ? AND session_id = ?", rec.RunID, sessionID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	var (
		ideal, fastestTime, timeLost, lapStd sql.NullFloat64
		fastestID, refID                     sql.NullInt64
	)
	if rep.IdealLapError == "" && rep.IdealLap > 0 {
		ideal = sql.NullFloat64{Float64: rep.IdealLap, Valid: true}
	}
	if rep.FastestLap != nil {
		fastestID = sql.NullInt64{Int64: int64(rep.FastestLap.LapID), Valid: true}
		fastestTime = sql.NullFloat64{Float64: rep.FastestLap.TimeSeconds, Valid: true}
		if ideal.Valid {
			timeLost = sql.NullFloat64{Float64: rep.TimeLost, Valid: true}
		}
	}
	if rep.ReferenceLapID != 0 {
		refID = sql.NullInt64{Int64: int64(rep.ReferenceLapID), Valid: true}
	}
	if rep.Consistency.Computed {
		lapStd = sql.NullFloat64{Float64: rep.Consistency.LapTimeStdDev, Valid: true}
	}
	status := rep.Status
	var errText string
	if rec.Err != nil {
		status = analysis.StatusFailed
		errText = rec.Err.Error()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			run_id, session_id, status, sample_count, moving_count, lap_count,
			corner_count, sector_strategy, ideal_lap, fastest_lap_id,
			fastest_lap_time, time_lost, reference_lap_id, lap_time_std_dev,
			consistency_signal, error, report_json, recorded_unix_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, sessionID, string(status), rep.SampleCount, rep.MovingCount, len(rep.Laps),
		rep.CornerMap.Len(), string(rep.Strategy), ideal, fastestID,
		fastestTime, timeLost, refID, lapStd,
		string(rep.Consistency.Signal), errText, string(reportJSON), rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sessionID, err)
	}

	for _, l := range rep.Laps {
		var final sql.NullFloat64
		if l.Delta != nil && len(l.Delta.DeltaTime) > 0 {
			final = sql.NullFloat64{Float64: l.Delta.Final(), Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO session_laps (
				run_id, session_id, lap_id, mode, time_text, time_seconds, valid,
				analyzed, is_reference, samples, max_speed, final_delta
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, sessionID, l.ID, string(l.Mode), l.TimeText, l.TimeSeconds, l.Valid,
			l.Analyzed, l.Reference, l.Samples, l.MaxSpeed, final,
		); err != nil {
			return fmt.Errorf("failed to insert lap %d: %w", l.ID, err)
		}
		for _, s := range l.Sectors {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO sector_times (run_id, session_id, lap_id, segment, seconds)
				VALUES (?, ?, ?, ?, ?)`,
				rec.RunID, sessionID, l.ID, s.Segment, s.Seconds,
			); err != nil {
				return fmt.Errorf("failed to insert sector %d of lap %d: %w", s.Segment, l.ID, err)
			}
		}
		for _, c := range l.Corners {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO corner_speeds (run_id, session_id, lap_id, corner_id, entry_speed, apex_speed, apex_delta)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.RunID, sessionID, l.ID, c.CornerID, c.EntrySpeed, c.ApexSpeed, c.ApexDelta,
			); err != nil {
				return fmt.Errorf("failed to insert corner %d of lap %d: %w", c.CornerID, l.ID, err)
			}
		}
	}

	apexStd := make(map[int]sql.NullFloat64, len(rep.Consistency.Corners))
	for _, cc := range rep.Consistency.Corners {
		if cc.Samples >= 2 {
			apexStd[cc.CornerID] = sql.NullFloat64{Float64: cc.StdDev, Valid: true}
		}
	}
	for _, c := range rep.CornerMap.Corners {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO session_corners (
				run_id, session_id, corner_id, reference_distance, lat, lon,
				direction, members, apex_std_dev
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, sessionID, c.ID, c.ReferenceDistance, c.Lat, c.Lon,
			c.Direction, c.Members, apexStd[c.ID],
		); err != nil {
			return fmt.Errorf("failed to insert corner %d: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

const summaryColumns = `run_id, session_id, status, sample_count, moving_count,
	lap_count, corner_count, sector_strategy, ideal_lap, fastest_lap_id,
	fastest_lap_time, time_lost, reference_lap_id, lap_time_std_dev,
	consistency_signal, error, recorded_unix_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (SessionSummary, error) {
	var (
		s                                    SessionSummary
		ideal, fastestTime, timeLost, lapStd sql.NullFloat64
		fastestID, refID                     sql.NullInt64
		recorded                             int64
	)
	err := row.Scan(&s.RunID, &s.SessionID, &s.Status, &s.SampleCount, &s.MovingCount,
		&s.LapCount, &s.CornerCount, &s.SectorStrategy, &ideal, &fastestID,
		&fastestTime, &timeLost, &refID, &lapStd,
		&s.Signal, &s.Error, &recorded)
	if err != nil {
		return s, err
	}
	s.IdealLap = floatPtr(ideal)
	s.FastestLapID = intPtr(fastestID)
	s.FastestLapTime = floatPtr(fastestTime)
	s.TimeLost = floatPtr(timeLost)
	s.ReferenceLapID = intPtr(refID)
	s.LapTimeStdDev = floatPtr(lapStd)
	s.RecordedAt = time.UnixMilli(recorded).UTC()
	return s, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// ListSessions returns the latest recorded result of every session,
// ordered by session id.
func (db *DB) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM sessions s
		WHERE s.rowid = (
			SELECT s2.rowid FROM sessions s2
			WHERE s2.session_id = s.session_id
			ORDER BY s2.recorded_unix_ms DESC, s2.rowid DESC LIMIT 1
		)
		ORDER BY s.session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession returns the latest recorded result of session id with all of
// its rows, or ErrNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM sessions WHERE session_id = ?
		ORDER BY recorded_unix_ms DESC, rowid DESC LIMIT 1`, id)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d := &SessionDetail{SessionSummary: summary}
	key := []any{summary.RunID, summary.SessionID}

	if err := db.queryRows(ctx, `
		SELECT lap_id, mode, time_text, time_seconds, valid, analyzed,
			is_reference, samples, max_speed, final_delta
		FROM session_laps WHERE run_id = ? AND session_id = ? ORDER BY lap_id`, key,
		func(rows *sql.Rows) error {
			var l LapRow
			var final sql.NullFloat64
			if err := rows.Scan(&l.LapID, &l.Mode, &l.TimeText, &l.TimeSeconds, &l.Valid,
				&l.Analyzed, &l.Reference, &l.Samples, &l.MaxSpeed, &final); err != nil {
				return err
			}
			l.FinalDelta = floatPtr(final)
			d.Laps = append(d.Laps, l)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("session %s laps: %w", id, err)
	}

	if err := db.queryRows(ctx, `
		SELECT corner_id, reference_distance, lat, lon, direction, members, apex_std_dev
		FROM session_corners WHERE run_id = ? AND session_id = ? ORDER BY corner_id`, key,
		func(rows *sql.Rows) error {
			var c CornerRow
			var std sql.NullFloat64
			if err := rows.Scan(&c.CornerID, &c.ReferenceDistance, &c.Lat, &c.Lon,
				&c.Direction, &c.Members, &std); err != nil {
				return err
			}
			c.ApexStdDev = floatPtr(std)
			d.Corners = append(d.Corners, c)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("session %s corners: %w", id, err)
	}

	if err := db.queryRows(ctx, `
		SELECT lap_id, segment, seconds
		FROM sector_times WHERE run_id = ? AND session_id = ? ORDER BY lap_id, segment`, key,
		func(rows *sql.Rows) error {
			var s SectorRow
			if err := rows.Scan(&s.LapID, &s.Segment, &s.Seconds); err != nil {
				return err
			}
			d.Sectors = append(d.Sectors, s)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("session %s sectors: %w", id, err)
	}

	if err := db.queryRows(ctx, `
		SELECT lap_id, corner_id, entry_speed, apex_speed, apex_delta
		FROM corner_speeds WHERE run_id = ? AND session_id = ? ORDER BY lap_id, corner_id`, key,
		func(rows *sql.Rows) error {
			var c CornerSpeedRow
			if err := rows.Scan(&c.LapID, &c.CornerID, &c.EntrySpeed, &c.ApexSpeed, &c.ApexDelta); err != nil {
				return err
			}
			d.CornerSpeeds = append(d.CornerSpeeds, c)
			return nil
		}); err != nil {
		return nil, fmt.Errorf("session %s corner speeds: %w", id, err)
	}

	return d, nil
}

// queryRows runs query and calls fn for each row, closing the rows before
// returning so the single connection is free for the next query.
func (db *DB) queryRows(ctx context.Context, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
