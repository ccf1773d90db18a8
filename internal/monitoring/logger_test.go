package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op; the previous logger must not be reached.
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestSessionPrefix(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	logf := Session("20250412_1030")
	logf("lap %d skipped", 4)

	want := "[session 20250412_1030] lap 4 skipped"
	if got != want {
		t.Errorf("Session logger wrote %q, want %q", got, want)
	}
}

func TestSession_FollowsSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Session("7")

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	logf("corner map has %d corners", 5)

	SetLogger(nil)
	logf("muted")

	if len(got) != 1 || got[0] != "[session 7] corner map has 5 corners" {
		t.Errorf("Session logger wrote %q, want one prefixed line", got)
	}
}
