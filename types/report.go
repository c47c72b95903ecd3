package types

// Report is the structured result document emitted by the test runner's
// machine-readable reporter. Suites nest arbitrarily deep.
type Report struct {
	Suites []ReportSuite `json:"suites"`
	Stats  ReportStats   `json:"stats"`
}

// ReportStats mirrors the runner's top-level timing block.
type ReportStats struct {
	StartTime string  `json:"startTime"`
	Duration  float64 `json:"duration"` // milliseconds
}

// ReportSuite is one node in the suite tree.
type ReportSuite struct {
	Title  string        `json:"title"`
	File   string        `json:"file"`
	Suites []ReportSuite `json:"suites,omitempty"`
	Specs  []ReportSpec  `json:"specs,omitempty"`
}

// ReportSpec is a single declared test case with its attempts.
type ReportSpec struct {
	Title string       `json:"title"`
	Ok    bool         `json:"ok"`
	Tests []ReportTest `json:"tests,omitempty"`
}

// ReportTest is one projection of a spec (per browser/shard), carrying the
// outcome relative to the expected status.
type ReportTest struct {
	ExpectedStatus string          `json:"expectedStatus"`
	Status         string          `json:"status"` // expected | unexpected | flaky | skipped
	Results        []ReportAttempt `json:"results,omitempty"`
}

// ReportAttempt is a single run attempt of a test.
type ReportAttempt struct {
	Status   string  `json:"status"`
	Duration float64 `json:"duration"` // milliseconds
}

// Outcome classifications for a ReportTest, relative to expectation.
const (
	OutcomeExpected   = "expected"
	OutcomeUnexpected = "unexpected"
	OutcomeSkipped    = "skipped"
)
