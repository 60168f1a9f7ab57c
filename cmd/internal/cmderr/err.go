// Package cmderr distinguishes command-level failures that are not usage
// problems from plain usage errors cobra should print help for.
package cmderr

// FatalErr wraps an error that is not a usage problem, so Execute prints
// the error without also dumping command usage.
type FatalErr struct {
	Err error
}

func (e FatalErr) Error() string {
	return e.Err.Error()
}

// Cause implements the github.com/pkg/errors causer interface.
func (e FatalErr) Cause() error {
	return e.Err
}

// Unwrap implements the standard library's errors.Unwrap interface.
func (e FatalErr) Unwrap() error {
	return e.Err
}
