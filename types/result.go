package types

import "time"

// ExecutionStatus is the terminal status of a completed execution.
type ExecutionStatus string

const (
	StatusPassed ExecutionStatus = "passed"
	StatusFailed ExecutionStatus = "failed"
)

// ArtifactKind is the closed set of artifact classifications.
type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactVideo      ArtifactKind = "video"
	ArtifactTrace      ArtifactKind = "trace"
	ArtifactReport     ArtifactKind = "report"
)

// Artifact describes one durable byproduct of a run after ownership has
// transferred from the workspace to durable storage.
type Artifact struct {
	Filename    string       `json:"filename"`
	StoragePath string       `json:"storagePath"`
	URL         string       `json:"url"`
	Size        int64        `json:"size"`
	CapturedAt  time.Time    `json:"capturedAt"`
	Kind        ArtifactKind `json:"kind"`
}

// Summary is derived from a result's parsed report and artifact manifest.
type Summary struct {
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	TestCount       int           `json:"testCount"`
	Screenshots     int           `json:"screenshots"`
	Videos          int           `json:"videos"`
	Traces          int           `json:"traces"`
	Reports         int           `json:"reports"`
	AvgTestDuration time.Duration `json:"avgTestDuration"`
}

// ExecutionResult is the single record produced for an admitted execution.
// It is created once, persisted once and immutable thereafter.
type ExecutionResult struct {
	SessionID       string          `json:"sessionId"`
	ExecutionID     string          `json:"executionId"`
	ExitCode        int             `json:"exitCode"`
	Status          ExecutionStatus `json:"status"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Duration        time.Duration   `json:"duration"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	Report          *Report         `json:"report,omitempty"`
	Artifacts       []Artifact      `json:"artifacts"`
	Summary         Summary         `json:"summary"`
	ProcessingError string          `json:"processingError,omitempty"`
}
