package harbor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionError(t *testing.T) {
	base := errors.New("session id is required")
	admErr := NewAdmissionError(base)

	assert.True(t, IsAdmissionError(admErr))
	assert.False(t, IsAdmissionError(base))
	assert.False(t, IsAdmissionError(nil))
	assert.Contains(t, admErr.Error(), "session id is required")

	wrapped := fmt.Errorf("submit failed: %w", admErr)
	assert.True(t, IsAdmissionError(wrapped))
	assert.Equal(t, base, errors.Unwrap(admErr))
}
