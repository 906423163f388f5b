package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tapforge/harness/types"
)

// Formatter renders a report into one output form.
type Formatter interface {
	Format(report *Report) (string, error)
}

// Writer writes formatted report content to a destination.
type Writer interface {
	Write(content string) error
}

// FileWriter writes reports to a file.
type FileWriter struct {
	path string
}

// NewFileWriter creates a new file writer.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write writes the content to the file.
func (fw *FileWriter) Write(content string) error {
	return os.WriteFile(fw.path, []byte(content), 0644)
}

// StdoutWriter writes reports to stdout.
type StdoutWriter struct{}

// Write writes the content to stdout.
func (sw *StdoutWriter) Write(content string) error {
	_, err := fmt.Print(content)
	return err
}

// JSONFormatter renders the structured machine-readable form. Unmarshalling
// the output reproduces every observable field of the report.
type JSONFormatter struct{}

// Format marshals the report with indentation.
func (f *JSONFormatter) Format(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

// Parse is the inverse of Format.
func (f *JSONFormatter) Parse(content string) (*Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// TextFormatter renders the narrative human-readable form.
type TextFormatter struct{}

// Format renders the report section by section.
func (f *TextFormatter) Format(report *Report) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Harness Report %s\n", report.RunID)
	fmt.Fprintf(&b, "Started:  %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(report.Duration))
	fmt.Fprintf(&b, "Status:   %s\n\n", strings.ToUpper(string(report.Status)))

	if report.Unit != nil {
		f.writeRunResult(&b, "Unit tests", report.Unit)
	}
	if report.Integration != nil {
		f.writeRunResult(&b, "Integration tests", report.Integration)
	}
	if report.Benchmark != nil {
		run := report.Benchmark
		fmt.Fprintf(&b, "Performance benchmark %q (%s)\n", run.Name, formatDuration(run.Duration))
		fmt.Fprintf(&b, "  CPU:    min %.1f%%  max %.1f%%  avg %.1f%%  median %.1f%%\n",
			run.CPUSummary.Min, run.CPUSummary.Max, run.CPUSummary.Avg, run.CPUSummary.Median)
		fmt.Fprintf(&b, "  FPS:    min %.1f  max %.1f  avg %.1f  median %.1f\n",
			run.FPSSummary.Min, run.FPSSummary.Max, run.FPSSummary.Avg, run.FPSSummary.Median)
		if run.AvgMemoryUsedMB > 0 {
			fmt.Fprintf(&b, "  Memory: avg %.1f MB used\n", run.AvgMemoryUsedMB)
		}
		for action, summary := range run.ResponseSummary {
			fmt.Fprintf(&b, "  Response[%s]: min %.0fms  max %.0fms  avg %.0fms  median %.0fms\n",
				action, summary.Min, summary.Max, summary.Avg, summary.Median)
		}
		b.WriteString("\n")
	}
	if report.Stability != nil {
		s := report.Stability
		fmt.Fprintf(&b, "Stability session %q: %s (%s)\n", s.Name, s.State, formatDuration(s.Duration))
		fmt.Fprintf(&b, "  Errors: %d  Recoveries: %d  Checkpoints: %d\n",
			s.ErrorCount, len(s.Recoveries), len(s.Checkpoints))
		for _, ev := range s.Errors {
			fmt.Fprintf(&b, "  error %-24s %s\n", ev.Type, ev.Message)
		}
		b.WriteString("\n")
	}
	if report.Compatibility != nil {
		c := report.Compatibility
		fmt.Fprintf(&b, "Compatibility: %s\n", compatVerdict(c.Compatible))
		fmt.Fprintf(&b, "  Target: %s (detected %q, required %q)\n",
			compatVerdict(c.Target.Compatible), c.Target.DetectedVersion, c.Target.RequiredVersion)
		fmt.Fprintf(&b, "  Host:   %s (detected %q, required %q)\n",
			compatVerdict(c.Host.Compatible), c.Host.DetectedVersion, c.Host.RequiredVersion)
		for _, issue := range append(append([]string{}, c.Target.Issues...), c.Host.Issues...) {
			fmt.Fprintf(&b, "  issue: %s\n", issue)
		}
		fmt.Fprintf(&b, "  Environment: capture=%t file=%t permissions=%t touch=%t\n",
			c.Environment.ScreenCapture, c.Environment.FileAccess,
			c.Environment.Permissions, c.Environment.TouchSimulation)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func (f *TextFormatter) writeRunResult(b *strings.Builder, title string, result *types.RunResult) {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (%s)", title, formatDuration(result.Duration)))
	// The footer carries a prose tally; keep it out of the default
	// uppercase footer formatting.
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Suite", "Case", "Status", "Duration", "Error"})
	for _, outcome := range result.Outcomes {
		t.AppendRow(table.Row{
			outcome.Suite,
			outcome.Case,
			string(outcome.Status),
			formatDuration(outcome.Duration),
			outcome.Error,
		})
	}
	t.AppendFooter(table.Row{
		"TOTAL", result.Stats.Total,
		fmt.Sprintf("%d passed / %d failed / %d skipped",
			result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped),
		"", "",
	})
	b.WriteString(t.Render())
	b.WriteString("\n\n")
}

func compatVerdict(ok bool) string {
	if ok {
		return "compatible"
	}
	return "incompatible"
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
