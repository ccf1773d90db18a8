package analysis

import (
	"errors"
	"fmt"

	"github.com/kartbox/telemetry/internal/errs"
	"github.com/kartbox/telemetry/internal/telemetry"
)

const (
	// ErrInsufficientData is returned when a lap, segment or series has too
	// few usable samples for the requested computation.
	ErrInsufficientData = errs.Error("insufficient data")
	// ErrUndefinedReference is returned when no reference interpolant can be
	// built, either because no valid reference lap exists or because its
	// distances never advance.
	ErrUndefinedReference = errs.Error("undefined reference")
	// ErrParseFailure is shared with the ingestion layer.
	ErrParseFailure = telemetry.ErrParseFailure
)

// Reason classifies why a unit of work was skipped or failed.
type Reason string

const (
	ReasonInsufficientData    Reason = "insufficient-data"
	ReasonParseFailure        Reason = "parse-failure"
	ReasonUndefinedReference  Reason = "undefined-reference"
	ReasonNonPositiveDuration Reason = "non-positive-duration"
	ReasonNoReference         Reason = "no-reference"
)

// AnalysisError ties a failure to the operation and lap that produced it.
type AnalysisError struct {
	Op     string
	LapID  int
	Reason Reason
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.LapID != 0 {
		return fmt.Sprintf("%s: lap %d: %v", e.Op, e.LapID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func newError(op string, lapID int, reason Reason, err error) *AnalysisError {
	return &AnalysisError{Op: op, LapID: lapID, Reason: reason, Err: err}
}

// ReasonOf extracts the reason carried by err, falling back to the sentinel
// it wraps. It returns "" for unrelated errors.
func ReasonOf(err error) Reason {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	switch {
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrUndefinedReference):
		return ReasonUndefinedReference
	case errors.Is(err, ErrParseFailure):
		return ReasonParseFailure
	}
	return ""
}

// Stage names the step of the chain a Skip belongs to.
type Stage string

const (
	StageLap       Stage = "lap"
	StageLapTime   Stage = "lap-time"
	StageCorners   Stage = "corners"
	StageSectors   Stage = "sectors"
	StageIdeal     Stage = "ideal-lap"
	StageReference Stage = "reference"
	StageDelta     Stage = "delta"
)

// Skip records a unit of work that was left out of the results.
type Skip struct {
	Stage   Stage  `json:"stage"`
	LapID   int    `json:"lap_id,omitempty"`
	Segment int    `json:"segment,omitempty"`
	Reason  Reason `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

func skipFromError(stage Stage, lapID int, err error) Skip {
	return Skip{Stage: stage, LapID: lapID, Reason: ReasonOf(err), Detail: err.Error()}
}
