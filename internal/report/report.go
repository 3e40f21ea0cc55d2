// Package report renders analyzer reports and history queries as terminal
// tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"benchhist/internal/history"
	"benchhist/internal/regression"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

var (
	regressionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	improvementStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	neutralStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle       = lipgloss.NewStyle().Bold(true)
)

// VerdictLabel renders a verdict kind with its color.
func VerdictLabel(k regression.Kind) string {
	switch k {
	case regression.Regression:
		return regressionStyle.Render(k.String())
	case regression.Improvement:
		return improvementStyle.Render(k.String())
	default:
		return neutralStyle.Render(k.String())
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

// WriteReport prints the verdicts of r followed by the new and skipped
// measurements.
func WriteReport(w io.Writer, r *regression.Report) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Suite %s, commit %s (%s)", r.Suite, r.CommitID, r.Tool)))
	fmt.Fprintf(w, "Threshold %s, %s policy\n", strconv.FormatFloat(r.Threshold*100, 'f', -1, 64)+"%", r.Policy)

	if len(r.Verdicts) > 0 {
		table := newTable(w, "Name", "Baseline", "Value", "Unit", "Ratio", "Verdict")
		table.SetColumnAlignment([]int{
			tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
			tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
		})
		for _, v := range r.Verdicts {
			table.Append([]string{
				v.Name,
				value(v.Baseline.Value),
				value(v.Value),
				v.Unit,
				ratio(v.Ratio),
				VerdictLabel(v.Kind),
			})
		}
		table.Render()
	}

	if len(r.New) > 0 {
		fmt.Fprintf(w, "No baseline: %d\n", len(r.New))
		for _, name := range r.New {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped: %d\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.Name, s.Reason)
		}
	}
}

// WriteHistory prints the occurrences of one measurement, most recent first.
func WriteHistory(w io.Writer, occurrences []history.Occurrence) {
	table := newTable(w, "Seq", "Commit", "Date", "Tool", "Value", "Range", "Unit")
	for _, o := range occurrences {
		table.Append([]string{
			strconv.Itoa(o.Seq),
			shortCommit(o.CommitID),
			date(o.Date),
			o.Tool,
			value(o.Measurement.Value),
			o.Measurement.Range,
			o.Measurement.Unit,
		})
	}
	table.Render()
}

// SuiteSummary is one row of the suites listing.
type SuiteSummary struct {
	Name       string
	Records    int
	Benchmarks int
	LastCommit string
	LastDate   int64
}

// WriteSuites prints one row per suite.
func WriteSuites(w io.Writer, suites []SuiteSummary) {
	table := newTable(w, "Suite", "Records", "Benchmarks", "Last commit", "Last run")
	for _, s := range suites {
		table.Append([]string{
			s.Name,
			strconv.Itoa(s.Records),
			strconv.Itoa(s.Benchmarks),
			shortCommit(s.LastCommit),
			date(s.LastDate),
		})
	}
	table.Render()
}

func value(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func ratio(r float64) string {
	if math.IsInf(r, 1) {
		return "inf"
	}
	return strconv.FormatFloat(r, 'f', 2, 64) + "x"
}

func date(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

func shortCommit(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
