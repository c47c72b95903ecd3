package harbor

import (
	"errors"
	"fmt"
)

// AdmissionError represents a malformed or rejected submission: missing
// test data, missing session id, or a session id reused while an execution
// for it is still in flight. It is reported synchronously and the execution
// never starts.
type AdmissionError struct {
	Err error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// NewAdmissionError creates a new AdmissionError
func NewAdmissionError(err error) *AdmissionError {
	return &AdmissionError{Err: err}
}

// IsAdmissionError checks if the error is or wraps an AdmissionError
func IsAdmissionError(err error) bool {
	var admissionErr *AdmissionError
	return err != nil && errors.As(err, &admissionErr)
}
