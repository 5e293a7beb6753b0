package cli

import "fmt"

// ConfigError means the batch could not start, or had to stop, because of
// its configuration or input file. Callers map it to exit code 1.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// InterruptedError indicates the batch was cancelled by a signal.
// Callers should map this to exit code 130.
type InterruptedError struct {
	Completed int
	Remaining int
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted after %d completed records, %d not run", e.Completed, e.Remaining)
}
