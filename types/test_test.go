package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfig_WithDefaults(t *testing.T) {
	cfg := RunConfig{}.WithDefaults()

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, CaptureOnFailure, cfg.Screenshot)
	assert.Equal(t, CaptureRetainOnFail, cfg.Video)
	assert.Equal(t, CaptureRetainOnFail, cfg.Trace)
	assert.Equal(t, "chromium", cfg.Browser)
	assert.Equal(t, Viewport{Width: 1280, Height: 720}, cfg.Viewport)
}

func TestRunConfig_WithDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := RunConfig{
		Timeout:    time.Minute,
		Retries:    3,
		Workers:    4,
		Screenshot: CaptureOff,
		Browser:    "firefox",
		Viewport:   Viewport{Width: 1920, Height: 1080},
	}.WithDefaults()

	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, CaptureOff, cfg.Screenshot)
	assert.Equal(t, "firefox", cfg.Browser)
	assert.Equal(t, Viewport{Width: 1920, Height: 1080}, cfg.Viewport)
	// Unset capture policies still get defaults.
	assert.Equal(t, CaptureRetainOnFail, cfg.Video)
}

func TestRunConfig_WithDefaults_ClampsNegativeRetries(t *testing.T) {
	cfg := RunConfig{Retries: -2}.WithDefaults()
	assert.Equal(t, 0, cfg.Retries)
}

func TestTestKind_IsValid(t *testing.T) {
	for _, kind := range []TestKind{TestKindUI, TestKindAPI, TestKindVisual, TestKindMixed} {
		assert.True(t, kind.IsValid(), "kind %q", kind)
	}
	assert.False(t, TestKind("browser").IsValid())
	assert.False(t, TestKind("").IsValid())
}

func TestTestDefinition_Validate(t *testing.T) {
	valid := TestDefinition{ID: "checkout", Kind: TestKindUI, Code: "code"}
	require.NoError(t, valid.Validate())

	// Kind is optional.
	require.NoError(t, TestDefinition{ID: "t", Code: "c"}.Validate())

	assert.Error(t, TestDefinition{Code: "c"}.Validate())
	assert.Error(t, TestDefinition{ID: "t"}.Validate())
	assert.Error(t, TestDefinition{ID: "t", Code: "c", Kind: "bogus"}.Validate())
}

func TestExecutionRequest_Validate(t *testing.T) {
	def := TestDefinition{ID: "t", Code: "c"}

	require.NoError(t, ExecutionRequest{Definition: def, SessionID: "session-1"}.Validate())
	assert.Error(t, ExecutionRequest{Definition: def}.Validate())
	assert.Error(t, ExecutionRequest{SessionID: "session-1"}.Validate())
}
