package types

import (
	"errors"
	"fmt"
	"time"
)

// TestKind classifies what a generated test exercises.
type TestKind string

const (
	TestKindUI     TestKind = "ui"
	TestKindAPI    TestKind = "api"
	TestKindVisual TestKind = "visual"
	TestKindMixed  TestKind = "mixed"
)

// IsValid returns true if the kind is one of the known test kinds.
func (k TestKind) IsValid() bool {
	switch k {
	case TestKindUI, TestKindAPI, TestKindVisual, TestKindMixed:
		return true
	}
	return false
}

// CapturePolicy controls when the runner keeps a capture artifact.
type CapturePolicy string

const (
	CaptureOn           CapturePolicy = "on"
	CaptureOff          CapturePolicy = "off"
	CaptureOnFailure    CapturePolicy = "only-on-failure"
	CaptureRetainOnFail CapturePolicy = "retain-on-failure"
)

// Viewport holds the browser window dimensions for a run.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// RunConfig is the resolved set of execution parameters for one test run.
// Every field is defaulted explicitly via WithDefaults before the config
// reaches the execution path.
type RunConfig struct {
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	Retries    int           `json:"retries" yaml:"retries"`
	Workers    int           `json:"workers" yaml:"workers"`
	Screenshot CapturePolicy `json:"screenshot" yaml:"screenshot"`
	Video      CapturePolicy `json:"video" yaml:"video"`
	Trace      CapturePolicy `json:"trace" yaml:"trace"`
	Browser    string        `json:"browser" yaml:"browser"`
	Viewport   Viewport      `json:"viewport" yaml:"viewport"`
	Tags       []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Default run parameters applied when the generation step leaves a field unset.
const (
	DefaultTimeout = 30 * time.Second
	DefaultWorkers = 1
	DefaultBrowser = "chromium"
)

// WithDefaults returns a copy of the config with every unset field resolved
// to its default value.
func (c RunConfig) WithDefaults() RunConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Screenshot == "" {
		c.Screenshot = CaptureOnFailure
	}
	if c.Video == "" {
		c.Video = CaptureRetainOnFail
	}
	if c.Trace == "" {
		c.Trace = CaptureRetainOnFail
	}
	if c.Browser == "" {
		c.Browser = DefaultBrowser
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = 1280
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 720
	}
	return c
}

// TestDefinition is the immutable unit of work produced by the generation
// step. The execution core never mutates it.
type TestDefinition struct {
	ID     string    `json:"id" yaml:"id"`
	Prompt string    `json:"prompt" yaml:"prompt"`
	Kind   TestKind  `json:"kind" yaml:"kind"`
	Code   string    `json:"code" yaml:"code"`
	Config RunConfig `json:"config" yaml:"config"`
}

// Validate checks structural presence of the fields the execution core
// requires. Code content itself is not validated.
func (d TestDefinition) Validate() error {
	if d.ID == "" {
		return errors.New("test definition requires an id")
	}
	if d.Code == "" {
		return errors.New("test definition requires generated code")
	}
	if d.Kind != "" && !d.Kind.IsValid() {
		return fmt.Errorf("unknown test kind %q", d.Kind)
	}
	return nil
}

// ExecutionRequest pairs a definition with its caller-supplied correlation
// key. It is consumed by the scheduler exactly once.
type ExecutionRequest struct {
	Definition  TestDefinition
	SessionID   string
	SubmittedAt time.Time
}

// Validate reports admission errors for a malformed request.
func (r ExecutionRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session id is required")
	}
	return r.Definition.Validate()
}
