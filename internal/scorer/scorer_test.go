package scorer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"plugineval/internal/cases"
	"plugineval/internal/matcher"
)

func finding(category string, mustDetect bool) cases.Finding {
	return cases.Finding{
		Category:    category,
		Severity:    cases.SeverityHigh,
		Description: category + " planted in artifact",
		MustDetect:  mustDetect,
	}
}

func detected() matcher.MatchResult {
	return matcher.MatchResult{Detected: true, Evidence: "quoted span", Rationale: "found"}
}

func missed() matcher.MatchResult {
	return matcher.MatchResult{Detected: false, Rationale: "no mention"}
}

func indeterminate() matcher.MatchResult {
	return matcher.MatchResult{Indeterminate: true, Rationale: "judge unavailable"}
}

func TestScoreAllMandatoryDetected(t *testing.T) {
	c := cases.Case{
		Name:            "sqli",
		Findings:        []cases.Finding{finding("SQL Injection", true), finding("XSS", true)},
		ExpectedVerdict: cases.VerdictIssuesFound,
	}
	s := Score(c, []matcher.MatchResult{detected(), detected()})

	if !s.Passed {
		t.Fatalf("should pass: %+v", s)
	}
	if s.ActualVerdict != cases.VerdictIssuesFound {
		t.Errorf("verdict = %q", s.ActualVerdict)
	}
	if s.FailureReason != "" {
		t.Errorf("failure reason = %q", s.FailureReason)
	}
}

func TestScoreMissedMandatoryFails(t *testing.T) {
	c := cases.Case{
		Name:            "sqli",
		Findings:        []cases.Finding{finding("SQL Injection", true), finding("XSS", true)},
		ExpectedVerdict: cases.VerdictIssuesFound,
	}
	s := Score(c, []matcher.MatchResult{detected(), missed()})

	if s.Passed {
		t.Fatal("should fail when a mandatory finding is missed")
	}
	if !strings.Contains(s.FailureReason, "XSS") {
		t.Errorf("failure reason = %q, should name the missed category", s.FailureReason)
	}
	if s.ActualVerdict != cases.VerdictPass {
		t.Errorf("verdict = %q, a report that misses issues effectively passed the artifact", s.ActualVerdict)
	}
}

func TestScoreInformationalMissDoesNotFail(t *testing.T) {
	c := cases.Case{
		Name:            "mixed",
		Findings:        []cases.Finding{finding("SQL Injection", true), finding("Style Nit", false)},
		ExpectedVerdict: cases.VerdictIssuesFound,
	}
	s := Score(c, []matcher.MatchResult{detected(), missed()})

	if !s.Passed {
		t.Fatalf("informational miss must not fail the case: %+v", s)
	}
	if len(s.Findings) != 2 {
		t.Errorf("all findings should be recorded, got %d", len(s.Findings))
	}
}

func TestScoreIndeterminateMandatoryFails(t *testing.T) {
	c := cases.Case{
		Name:            "flaky",
		Findings:        []cases.Finding{finding("SQL Injection", true)},
		ExpectedVerdict: cases.VerdictIssuesFound,
	}
	s := Score(c, []matcher.MatchResult{indeterminate()})

	if s.Passed {
		t.Fatal("indeterminate mandatory finding must fail the case")
	}
	if s.FailureReason != "indeterminate" {
		t.Errorf("failure reason = %q, want indeterminate", s.FailureReason)
	}
	if !s.Indeterminate() {
		t.Error("Indeterminate() should report true")
	}
}

func TestScoreIndeterminateInformationalPasses(t *testing.T) {
	c := cases.Case{
		Name:            "mixed",
		Findings:        []cases.Finding{finding("SQL Injection", true), finding("Style Nit", false)},
		ExpectedVerdict: cases.VerdictIssuesFound,
	}
	s := Score(c, []matcher.MatchResult{detected(), indeterminate()})

	if !s.Passed {
		t.Fatalf("indeterminate informational finding must not fail the case: %+v", s)
	}
	if s.Indeterminate() {
		t.Error("Indeterminate() only considers mandatory findings")
	}
}

func TestScoreNotApplicableTriviallyPasses(t *testing.T) {
	c := cases.Case{
		Name:            "na",
		Findings:        nil,
		ExpectedVerdict: cases.VerdictNotApplicable,
	}
	s := Score(c, nil)

	if !s.Passed {
		t.Fatalf("no mandatory findings means trivial pass: %+v", s)
	}
	if s.ActualVerdict != cases.VerdictNotApplicable {
		t.Errorf("verdict = %q, want the case's own expectation", s.ActualVerdict)
	}
}

func TestScoreLengthMismatch(t *testing.T) {
	c := cases.Case{Name: "broken", Findings: []cases.Finding{finding("X", true)}}
	s := Score(c, nil)

	if s.Passed {
		t.Fatal("length mismatch must fail")
	}
	if !strings.Contains(s.FailureReason, "internal") {
		t.Errorf("failure reason = %q", s.FailureReason)
	}
}

func TestFailed(t *testing.T) {
	got := Failed("case-x", "generator security timed out")
	want := CaseScore{CaseName: "case-x", Passed: false, FailureReason: "generator security timed out"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Failed() mismatch (-want +got):\n%s", diff)
	}
}
