package harness

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tapforge/harness/reporting"
	"github.com/tapforge/harness/stability"
	"github.com/tapforge/harness/types"
)

// printResultsTable prints the consolidated results to the console.
func (h *Harness) printResultsTable(report *reporting.Report) {
	h.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Harness Results (%s)", formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	if report.Unit != nil {
		appendRunRows(t, "Unit", report.Unit)
	}
	if report.Integration != nil {
		appendRunRows(t, "Integration", report.Integration)
	}
	if report.Benchmark != nil {
		run := report.Benchmark
		t.AppendRow(table.Row{
			"Benchmark",
			run.Name,
			formatDuration(run.Duration),
			"-", "-", "-", "-",
			fmt.Sprintf("cpu %.1f%% fps %.1f", run.CPUSummary.Avg, run.FPSSummary.Avg),
			"",
		})
		t.AppendSeparator()
	}
	if report.Stability != nil {
		s := report.Stability
		t.AppendRow(table.Row{
			"Stability",
			s.Name,
			formatDuration(s.Duration),
			"-", "-",
			s.ErrorCount,
			"-",
			getSessionString(s.State),
			firstErrorMessage(s),
		})
		t.AppendSeparator()
	}
	if report.Compatibility != nil {
		c := report.Compatibility
		t.AppendRow(table.Row{
			"Compatibility",
			fmt.Sprintf("target %s / host %s", orDash(c.Target.DetectedVersion), orDash(c.Host.DetectedVersion)),
			"-", "-", "-", "-", "-",
			getCompatString(c.Compatible),
			strings.Join(append(append([]string{}, c.Target.Issues...), c.Host.Issues...), "; "),
		})
		t.AppendSeparator()
	}

	switch report.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(report.Duration),
		report.Stats.Total,
		report.Stats.Passed,
		report.Stats.Failed,
		report.Stats.Skipped,
		getResultString(report.Status),
		"",
	})

	t.Render()
}

// appendRunRows prints one row per suite and one per case beneath it.
func appendRunRows(t table.Writer, label string, result *types.RunResult) {
	suiteOrder, suiteStats := tallyBySuite(result)

	for _, suiteName := range suiteOrder {
		stats := suiteStats[suiteName]
		t.AppendRow(table.Row{
			label,
			suiteName,
			"-",
			"-",
			stats.Passed,
			stats.Failed,
			stats.Skipped,
			getResultString(types.DetermineStatus(stats)),
			"",
		})

		outcomes := outcomesForSuite(result, suiteName)
		for i, outcome := range outcomes {
			prefix := "├──"
			if i == len(outcomes)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Test",
				fmt.Sprintf("%s %s", prefix, outcome.Case),
				formatDuration(outcome.Duration),
				"1",
				boolToInt(outcome.Status == types.TestStatusPass),
				boolToInt(outcome.Status == types.TestStatusFail),
				boolToInt(outcome.Status == types.TestStatusSkip),
				getResultString(outcome.Status),
				firstLine(outcome.Error),
			})
		}
	}
	t.AppendSeparator()
}

// tallyBySuite merges same-named suites into one reporting bucket, keeping
// first-appearance order.
func tallyBySuite(result *types.RunResult) ([]string, map[string]types.Stats) {
	order := make([]string, 0)
	tally := make(map[string]types.Stats)
	for _, outcome := range result.Outcomes {
		if _, seen := tally[outcome.Suite]; !seen {
			order = append(order, outcome.Suite)
		}
		stats := tally[outcome.Suite]
		stats.Add(outcome.Status)
		tally[outcome.Suite] = stats
	}
	return order, tally
}

func outcomesForSuite(result *types.RunResult, suite string) []types.CaseResult {
	var out []types.CaseResult
	for _, outcome := range result.Outcomes {
		if outcome.Suite == suite {
			out = append(out, outcome)
		}
	}
	return out
}

// firstLine trims an error message to its first line for table display.
func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	if len(s) > 80 {
		return s[:70] + "..."
	}
	return s
}

func firstErrorMessage(s *stability.Session) string {
	if len(s.Errors) == 0 {
		return ""
	}
	return firstLine(fmt.Sprintf("%s: %s", s.Errors[0].Type, s.Errors[0].Message))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing the result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

func getSessionString(state stability.State) string {
	if state == stability.StateCompleted {
		return "✓ completed"
	}
	return "✗ " + string(state)
}

func getCompatString(compatible bool) string {
	if compatible {
		return "✓ compatible"
	}
	return "✗ incompatible"
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
