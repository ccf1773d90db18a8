package version

import "testing"

func TestString(t *testing.T) {
	origV, origSHA, origTime := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origV, origSHA, origTime }()

	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2025-04-12"
	got := String("kartbox")
	want := "kartbox 1.2.0 (commit abc123, built 2025-04-12)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
