package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
// Replace it during setup, before any goroutine logs.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Session returns a logger that prefixes every line with the session id.
// Logf is looked up on each call, so a later SetLogger still takes effect.
func Session(id string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[session %s] ", id)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
