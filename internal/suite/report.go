package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// RenderMarkdown produces the human-readable suite report. Output is fully
// determined by the Result: cases are already name-sorted and findings keep
// their on-disk order, so identical results render identical text.
func RenderMarkdown(res *Result) string {
	var b strings.Builder

	b.WriteString("# Review Evaluation Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", res.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Cases: %d total, %d passed, %d failed", res.Total, res.Passed, res.Failed)
	if res.Indeterminate > 0 {
		fmt.Fprintf(&b, " (%d indeterminate)", res.Indeterminate)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Overall: **%s**\n\n", passLabel(res.AllPassed))

	for _, cs := range res.Cases {
		fmt.Fprintf(&b, "## %s — %s\n\n", cs.CaseName, passLabel(cs.Passed))
		if cs.FailureReason != "" {
			fmt.Fprintf(&b, "Failure reason: %s\n\n", cs.FailureReason)
		}
		if cs.ActualVerdict != "" {
			fmt.Fprintf(&b, "Verdict: %s\n\n", cs.ActualVerdict)
		}
		for _, fr := range cs.Findings {
			role := "mandatory"
			if !fr.Finding.MustDetect {
				role = "informational"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s): %s\n",
				fr.Finding.Severity, fr.Finding.Category, role, detectionLabel(fr.Match.Detected, fr.Match.Indeterminate))
			if fr.Match.Evidence != "" {
				fmt.Fprintf(&b, "  - evidence: %q\n", fr.Match.Evidence)
			}
			if fr.Match.Rationale != "" {
				fmt.Fprintf(&b, "  - rationale: %s\n", fr.Match.Rationale)
			}
		}
		if len(cs.Findings) > 0 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func detectionLabel(detected, indeterminate bool) string {
	switch {
	case indeterminate:
		return "indeterminate"
	case detected:
		return "detected"
	default:
		return "not detected"
	}
}

// WriteJSON writes the machine-readable CI artifact.
func WriteJSON(res *Result, path string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal suite result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write suite result: %w", err)
	}
	return nil
}

// WriteMarkdown writes the rendered report to disk.
func WriteMarkdown(res *Result, path string) error {
	if err := os.WriteFile(path, []byte(RenderMarkdown(res)), 0644); err != nil {
		return fmt.Errorf("write suite report: %w", err)
	}
	return nil
}
