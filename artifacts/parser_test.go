package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testharbor/testharbor/types"
)

const nestedReport = `{
  "suites": [
    {
      "title": "generated.spec.ts",
      "file": "generated.spec.ts",
      "suites": [
        {
          "title": "checkout flow",
          "file": "generated.spec.ts",
          "specs": [
            {
              "title": "adds item to cart",
              "ok": true,
              "tests": [{"expectedStatus": "passed", "status": "expected"}]
            },
            {
              "title": "completes payment",
              "ok": false,
              "tests": [{"expectedStatus": "passed", "status": "unexpected"}]
            }
          ]
        }
      ],
      "specs": [
        {
          "title": "loads the homepage",
          "ok": true,
          "tests": [{"expectedStatus": "passed", "status": "expected"}]
        }
      ]
    }
  ],
  "stats": {"startTime": "2026-08-29T12:00:00.000Z", "duration": 4120.5}
}`

// TestParseReport_NestedSuites verifies suite trees are parsed with their
// nesting intact.
func TestParseReport_NestedSuites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(nestedReport), 0o644))

	report, err := ParseReport(path)
	require.NoError(t, err)
	require.Len(t, report.Suites, 1)
	require.Len(t, report.Suites[0].Suites, 1)
	assert.Equal(t, "checkout flow", report.Suites[0].Suites[0].Title)
	assert.Len(t, report.Suites[0].Suites[0].Specs, 2)
	assert.Len(t, report.Suites[0].Specs, 1)
	assert.Equal(t, 4120.5, report.Stats.Duration)
}

func TestParseReport_Errors(t *testing.T) {
	_, err := ParseReport(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = ParseReport(path)
	require.Error(t, err)
}

// TestTally_CountsAcrossNesting verifies outcomes are tallied across every
// level of the suite tree.
func TestTally_CountsAcrossNesting(t *testing.T) {
	report := &types.Report{
		Suites: []types.ReportSuite{
			{
				Specs: []types.ReportSpec{
					{Tests: []types.ReportTest{{Status: types.OutcomeExpected}}},
				},
				Suites: []types.ReportSuite{
					{
						Specs: []types.ReportSpec{
							{Tests: []types.ReportTest{{Status: types.OutcomeUnexpected}}},
							{Tests: []types.ReportTest{{Status: types.OutcomeExpected}}},
							{Tests: []types.ReportTest{{Status: types.OutcomeSkipped}}},
						},
					},
				},
			},
		},
	}

	passed, failed, skipped := Tally(report)
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
}

func TestTally_NilReport(t *testing.T) {
	passed, failed, skipped := Tally(nil)
	assert.Zero(t, passed)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)
}

// TestSummarize derives counts from the report and manifest, and the
// average time per sub-test from the run duration.
func TestSummarize(t *testing.T) {
	result := &types.ExecutionResult{
		Duration: 3 * time.Second,
		Report: &types.Report{
			Suites: []types.ReportSuite{
				{
					Specs: []types.ReportSpec{
						{Tests: []types.ReportTest{{Status: types.OutcomeExpected}}},
						{Tests: []types.ReportTest{{Status: types.OutcomeExpected}}},
						{Tests: []types.ReportTest{{Status: types.OutcomeUnexpected}}},
					},
				},
			},
		},
		Artifacts: []types.Artifact{
			{Kind: types.ArtifactScreenshot},
			{Kind: types.ArtifactScreenshot},
			{Kind: types.ArtifactVideo},
			{Kind: types.ArtifactTrace},
			{Kind: types.ArtifactReport},
		},
	}

	summary := Summarize(result)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 3, summary.TestCount)
	assert.Equal(t, 2, summary.Screenshots)
	assert.Equal(t, 1, summary.Videos)
	assert.Equal(t, 1, summary.Traces)
	assert.Equal(t, 1, summary.Reports)
	assert.Equal(t, time.Second, summary.AvgTestDuration)
}

// TestSummarize_NoReport verifies an absent report yields zero counts and
// no average, rather than a division by zero.
func TestSummarize_NoReport(t *testing.T) {
	summary := Summarize(&types.ExecutionResult{Duration: time.Second})
	assert.Zero(t, summary.TestCount)
	assert.Zero(t, summary.AvgTestDuration)
}
