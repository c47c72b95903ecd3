package runner

import (
	"errors"
	"fmt"
)

// EnvironmentError reports a dependency-resolution failure. It is fatal for
// the execution: no test process is attempted after one.
type EnvironmentError struct {
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %v", e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// IsEnvironmentError checks if the error is or wraps an EnvironmentError.
func IsEnvironmentError(err error) bool {
	var envErr *EnvironmentError
	return err != nil && errors.As(err, &envErr)
}

// SpawnError reports that the test-runner process could not start at all.
// It is a distinct terminal condition from a failing test and is never
// folded into a failed-test result.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn error: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSpawnError checks if the error is or wraps a SpawnError.
func IsSpawnError(err error) bool {
	var spawnErr *SpawnError
	return err != nil && errors.As(err, &spawnErr)
}
