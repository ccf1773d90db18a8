// Package errs provides constant error values for sentinel errors.
package errs

import "fmt"

// Error is a string error type so sentinels can be declared as constants.
type Error string

func (e Error) Error() string { return string(e) }

// Errorf creates an Error from a format string and params.
func Errorf(format string, v ...interface{}) Error {
	return Error(fmt.Sprintf(format, v...))
}
