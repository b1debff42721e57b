package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/lucidscan/lucidscan/internal/types"
)

// TableReporter renders a human-readable summary for terminals.
type TableReporter struct{}

func (r *TableReporter) Report(w io.Writer, result *types.ScanResult) error {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(result.Issues) > 0 {
		fmt.Fprintf(w, "%s\n\n", bold("Issues"))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, issue := range result.Issues {
			location := issue.FilePath
			if issue.LineStart > 0 {
				location = fmt.Sprintf("%s:%d", issue.FilePath, issue.LineStart)
			}
			if location == "" {
				location = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				severityLabel(issue.Severity),
				issue.SourceTool,
				issue.RuleID,
				location,
				issue.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n\n", bold("Domains"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, domain := range types.AllDomains {
		summary, ok := result.Summaries[domain]
		if !ok {
			continue
		}
		verdict := green("pass")
		switch {
		case summary.Skipped:
			verdict = gray("skipped")
		case !summary.Passed:
			verdict = red("FAIL")
		}
		detail := fmt.Sprintf("%d issues", summary.Total)
		if summary.Metric != nil {
			detail = fmt.Sprintf("%.1f%%, %d issues", *summary.Metric, summary.Total)
		}
		if summary.Failures > 0 {
			detail += yellow(fmt.Sprintf(" (%d plugin failures)", summary.Failures))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", domain, verdict, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, pluginErr := range result.Errors {
		fmt.Fprintf(w, "\n%s %s\n", red("plugin error:"), pluginErr.Error())
	}

	fmt.Fprintln(w)
	if result.Passed() {
		fmt.Fprintf(w, "%s (%d issues, %dms)\n",
			green(bold("PASSED")), len(result.Issues), result.Metadata.DurationMS)
	} else {
		fmt.Fprintf(w, "%s (%d issues, exit %d, %dms)\n",
			red(bold("FAILED")), len(result.Issues), result.ExitCode, result.Metadata.DurationMS)
	}
	return nil
}

func severityLabel(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRIT")
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MED ")
	case types.SeverityLow:
		return color.New(color.FgCyan).Sprint("LOW ")
	default:
		return color.New(color.FgHiBlack).Sprint("INFO")
	}
}
