// Package cases defines the expected-finding model and the on-disk case
// repository. Discovery is split into two phases so the code path that invokes
// report generators never has the ground truth in scope: Locate exposes only
// case names and artifact paths, and LoadExpected reads the finding model
// strictly after report generation has completed.
package cases

import (
	"fmt"
	"strings"
)

// Severity classifies an expected finding.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// ParseSeverity normalizes a severity label.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityLow:
		return SeverityLow, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Verdict is the expected overall outcome of a case.
type Verdict string

const (
	VerdictPass          Verdict = "PASS"
	VerdictIssuesFound   Verdict = "ISSUES_FOUND"
	VerdictNotApplicable Verdict = "NOT_APPLICABLE"
)

// ParseVerdict normalizes a verdict label. An empty label defaults to
// ISSUES_FOUND, matching the original eval fixtures which plant defects.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case VerdictPass, VerdictIssuesFound, VerdictNotApplicable:
		return v, nil
	case "":
		return VerdictIssuesFound, nil
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

// Finding is one expected, plantable defect. Immutable once loaded.
type Finding struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	MustDetect  bool     `json:"must_detect"`
}

// Expected is the ground-truth half of a case: its finding list and expected
// verdict. It must only be loaded after report generation for the case has
// completed.
type Expected struct {
	EvalName        string
	Findings        []Finding
	ExpectedVerdict Verdict
}

// Case is a fully assembled evaluation case, built by joining a Ref with its
// Expected after the blind-evaluation barrier has passed. Read-only.
type Case struct {
	Name            string
	ArtifactPath    string
	Findings        []Finding
	ExpectedVerdict Verdict
}

// Assemble joins a located case with its loaded ground truth.
func Assemble(ref Ref, exp *Expected) Case {
	return Case{
		Name:            ref.Name,
		ArtifactPath:    ref.ArtifactPath,
		Findings:        exp.Findings,
		ExpectedVerdict: exp.ExpectedVerdict,
	}
}
