package harbor

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testharbor/testharbor/types"
)

// ResultFormatter renders a completed execution for human consumption.
type ResultFormatter interface {
	FormatResult(result *types.ExecutionResult) error
}

// ConsoleResultFormatter writes a summary table to the given writer.
type ConsoleResultFormatter struct {
	out io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{out: out}
}

// FormatResult formats and displays one execution result.
func (f *ConsoleResultFormatter) FormatResult(result *types.ExecutionResult) error {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Execution %s (%s)", result.SessionID, formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Status", "Exit Code", "Tests", "Passed", "Failed", "Skipped", "Artifacts",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Exit Code", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Artifacts", Align: text.AlignRight},
	})

	t.AppendRow(table.Row{
		statusString(result.Status),
		result.ExitCode,
		result.Summary.TestCount,
		result.Summary.Passed,
		result.Summary.Failed,
		result.Summary.Skipped,
		len(result.Artifacts),
	})

	if len(result.Artifacts) > 0 {
		t.AppendSeparator()
		for _, artifact := range result.Artifacts {
			t.AppendRow(table.Row{
				string(artifact.Kind), "", "", "", "", "", artifact.URL,
			})
		}
	}
	if result.ProcessingError != "" {
		t.AppendFooter(table.Row{"processing error", result.ProcessingError})
	}

	t.Render()
	return nil
}

func statusString(status types.ExecutionStatus) string {
	if status == types.StatusPassed {
		return "✓ passed"
	}
	return "✗ failed"
}

// formatDuration renders a duration rounded for table display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
