package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/testharbor/testharbor/types"
)

// ParseReport reads the runner's machine-readable result document.
func ParseReport(path string) (*types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report types.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// Tally walks the report's suite tree, which may nest arbitrarily deep,
// and counts sub-test outcomes. A test passed iff its outcome matched the
// expected outcome, failed iff unexpected, and is otherwise skipped.
func Tally(report *types.Report) (passed, failed, skipped int) {
	if report == nil {
		return 0, 0, 0
	}
	for i := range report.Suites {
		p, f, s := tallySuite(&report.Suites[i])
		passed += p
		failed += f
		skipped += s
	}
	return passed, failed, skipped
}

func tallySuite(suite *types.ReportSuite) (passed, failed, skipped int) {
	for i := range suite.Suites {
		p, f, s := tallySuite(&suite.Suites[i])
		passed += p
		failed += f
		skipped += s
	}
	for _, spec := range suite.Specs {
		for _, test := range spec.Tests {
			switch test.Status {
			case types.OutcomeExpected:
				passed++
			case types.OutcomeUnexpected:
				failed++
			default:
				skipped++
			}
		}
	}
	return passed, failed, skipped
}

// Summarize derives the result summary: sub-test counts from the parsed
// report, per-kind artifact counts and the average time per sub-test.
func Summarize(result *types.ExecutionResult) types.Summary {
	summary := types.Summary{}

	if result.Report != nil {
		summary.Passed, summary.Failed, summary.Skipped = Tally(result.Report)
	}
	summary.TestCount = summary.Passed + summary.Failed + summary.Skipped

	for _, artifact := range result.Artifacts {
		switch artifact.Kind {
		case types.ArtifactScreenshot:
			summary.Screenshots++
		case types.ArtifactVideo:
			summary.Videos++
		case types.ArtifactTrace:
			summary.Traces++
		case types.ArtifactReport:
			summary.Reports++
		}
	}

	if summary.TestCount > 0 {
		summary.AvgTestDuration = time.Duration(int64(result.Duration) / int64(summary.TestCount))
	}
	return summary
}
