package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kartbox/telemetry/internal/analysis"
)

// writeSummary encodes the session report as indented JSON.
func writeSummary(w io.Writer, rep *analysis.SessionReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode session summary: %w", err)
	}
	return nil
}
