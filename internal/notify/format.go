package notify

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"benchhist/internal/regression"
)

// FormatOptions selects which verdicts a message lists.
type FormatOptions struct {
	Regressions  bool
	Improvements bool
}

// FormatReport renders the selected verdicts of a report as plain text.
// It returns "" when nothing selected is present.
func FormatReport(r *regression.Report, opts FormatOptions) string {
	var regs, imps []regression.Verdict
	if opts.Regressions {
		regs = r.Regressions()
	}
	if opts.Improvements {
		imps = r.Improvements()
	}
	if len(regs) == 0 && len(imps) == 0 {
		return ""
	}

	var sb strings.Builder
	title := "Performance report"
	switch {
	case len(regs) > 0 && len(imps) == 0:
		title = "Performance regression"
	case len(regs) == 0:
		title = "Performance improvement"
	}
	sb.WriteString(fmt.Sprintf("%s in %s (commit %s, tool %s)\n", title, r.Suite, shortCommit(r.CommitID), r.Tool))
	sb.WriteString(fmt.Sprintf("Threshold: %s (%s policy)\n", percent(r.Threshold), r.Policy))

	writeVerdicts(&sb, "Regressions", regs)
	writeVerdicts(&sb, "Improvements", imps)

	if n := len(r.Skipped); n > 0 {
		sb.WriteString(fmt.Sprintf("\n%d measurement(s) could not be compared.\n", n))
	}
	if r.ID != "" {
		sb.WriteString(fmt.Sprintf("Report: %s\n", r.ID))
	}
	return sb.String()
}

func writeVerdicts(sb *strings.Builder, heading string, verdicts []regression.Verdict) {
	if len(verdicts) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n%s:\n", heading))
	for _, v := range verdicts {
		sb.WriteString(fmt.Sprintf("- %s: %s -> %s %s (%s, %s)\n",
			v.Name,
			FormatValue(v.Baseline.Value), FormatValue(v.Value), v.Unit,
			FormatRatio(v.Ratio), v.Kind))
	}
}

// FormatValue renders a measurement value without trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// FormatRatio renders a ratio as a multiplier, e.g. "5.98x".
func FormatRatio(ratio float64) string {
	if math.IsInf(ratio, 1) {
		return "∞x"
	}
	return strconv.FormatFloat(ratio, 'f', 2, 64) + "x"
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
}

func shortCommit(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
