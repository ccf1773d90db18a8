package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	tmpDir := t.TempDir()

	reports := filepath.Join(tmpDir, "reports")
	private := filepath.Join(tmpDir, "private")
	if err := os.MkdirAll(filepath.Join(reports, "session_1"), 0755); err != nil {
		t.Fatalf("Failed to create reports directory: %v", err)
	}
	if err := os.MkdirAll(private, 0755); err != nil {
		t.Fatalf("Failed to create private directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(private, "kartbox.db"), []byte("secret"), 0644); err != nil {
		t.Fatalf("Failed to create private file: %v", err)
	}
	if err := os.Symlink(private, filepath.Join(reports, "evil-symlink")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		file      string
		wantError bool
	}{
		{"report file", "session_1/report.pdf", false},
		{"nested file not yet written", "session_2/laps/lap_1_speed.png", false},
		{"root", "", false},
		{"traversal with ..", "../private/kartbox.db", true},
		{"traversal inside path", "session_1/../../private/kartbox.db", true},
		{"symlink to outside dir", "evil-symlink/kartbox.db", true},
		{"symlink itself", "evil-symlink", true},
		{"new file under symlink", "evil-symlink/new.csv", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(reports, tt.file)
			if (err != nil) != tt.wantError {
				t.Fatalf("ResolveWithin() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && !strings.HasPrefix(got, reports) {
				t.Errorf("ResolveWithin() = %q, want a path under %q", got, reports)
			}
		})
	}
}

func TestResolveWithin_MissingRoot(t *testing.T) {
	if _, err := ResolveWithin(filepath.Join(t.TempDir(), "absent"), "a.csv"); err == nil {
		t.Error("ResolveWithin() with a missing root should fail")
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"12":               "12",
		"track-day_3":      "track-day_3",
		"":                 "unknown",
		"..":               "unknown",
		"../../etc":        "etc",
		"lap one / two":    "lap_one_two",
		"Räume":            "R_ume",
		strings.Repeat("a", 200): strings.Repeat("a", 128),
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
