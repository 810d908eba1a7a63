// Package exitcodes defines standard exit codes for CLI operations so
// Airflow, Kubernetes, and other schedulers can tell recoverable failures
// from permanent ones.
package exitcodes

import (
	"context"
	"errors"
	"os"
	"strings"
)

const (
	// Success - run completed without errors
	Success = 0

	// ConfigError - configuration/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// ConnectionError - source/warehouse/graph connection or pool errors (recoverable)
	ConnectionError = 2

	// MigrationError - chunk or batch write failed; error text carries the resume offset
	MigrationError = 3

	// VerificationError - post-migration verification mismatch (data kept, operator follow-up)
	VerificationError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable, resume from offset)
	Cancelled = 5

	// StateError - run-history state database errors (non-recoverable)
	StateError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	// Cooperative cancellation surfaces as a wrapped context error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	if containsAny(errStr, []string{
		"verification",
		"row count mismatch",
	}) {
		return VerificationError
	}

	if containsAny(errStr, []string{
		"yaml:",
		"unmarshal",
		"invalid config",
		"missing required",
		"parsing config",
		"unknown dataset",
		"unknown relation",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"ping",
		"pool",
		"refused",
		"timeout",
	}) {
		return ConnectionError
	}

	if containsAny(errStr, []string{
		"run history",
		"state database",
	}) {
		return StateError
	}

	return MigrationError
}

// Exit exits the process with the code classified from err.
func Exit(err error) {
	os.Exit(FromError(err))
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
