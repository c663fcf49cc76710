// Package scorer aggregates per-finding match results into a case verdict.
// A case has exactly two terminal states, passed and failed; there is no
// retry at this level.
package scorer

import (
	"fmt"
	"strings"

	"plugineval/internal/cases"
	"plugineval/internal/logging"
	"plugineval/internal/matcher"
)

// FindingResult pairs an expected finding with its match outcome.
type FindingResult struct {
	Finding cases.Finding       `json:"finding"`
	Match   matcher.MatchResult `json:"match"`
}

// CaseScore is the scored outcome of one evaluation case.
type CaseScore struct {
	CaseName      string          `json:"case_name"`
	Findings      []FindingResult `json:"findings,omitempty"`
	ActualVerdict cases.Verdict   `json:"actual_verdict,omitempty"`
	Passed        bool            `json:"passed"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// Failed builds a failed score for a case that never reached matching
// (discovery error, generator failure).
func Failed(caseName, reason string) CaseScore {
	return CaseScore{CaseName: caseName, Passed: false, FailureReason: reason}
}

// Score computes the case verdict from per-finding results. results must be
// positionally aligned with c.Findings.
//
// Rules:
//   - the case passes iff every mandatory (must_detect) finding was detected;
//   - informational findings are recorded but never fail a case;
//   - an indeterminate result on a mandatory finding fails the case with
//     reason "indeterminate" rather than optimistically passing;
//   - a NOT_APPLICABLE case with zero mandatory findings trivially passes.
func Score(c cases.Case, results []matcher.MatchResult) CaseScore {
	if len(results) != len(c.Findings) {
		return Failed(c.Name, fmt.Sprintf(
			"internal: %d match results for %d findings", len(results), len(c.Findings)))
	}

	score := CaseScore{CaseName: c.Name}
	var mandatory, detected int
	var missed []string
	indeterminateMandatory := false

	for i, f := range c.Findings {
		mr := results[i]
		score.Findings = append(score.Findings, FindingResult{Finding: f, Match: mr})
		if !f.MustDetect {
			continue
		}
		mandatory++
		if mr.Indeterminate {
			indeterminateMandatory = true
			continue
		}
		if mr.Detected {
			detected++
		} else {
			missed = append(missed, f.Category)
		}
	}

	switch {
	case mandatory == 0:
		// Nothing mandatory to detect; the case's own expectation stands.
		score.ActualVerdict = c.ExpectedVerdict
		score.Passed = true
	case indeterminateMandatory:
		score.ActualVerdict = verdictFor(detected, mandatory)
		score.Passed = false
		score.FailureReason = "indeterminate"
	case detected == mandatory:
		score.ActualVerdict = cases.VerdictIssuesFound
		score.Passed = true
	default:
		score.ActualVerdict = verdictFor(detected, mandatory)
		score.Passed = false
		score.FailureReason = "missed mandatory findings: " + strings.Join(missed, ", ")
	}

	logging.Suite("scored case %s: passed=%v verdict=%s", c.Name, score.Passed, score.ActualVerdict)
	return score
}

// verdictFor maps detection coverage to the verdict the reports effectively
// rendered: a report that misses every mandatory issue amounts to a clean
// PASS of the flawed artifact.
func verdictFor(detected, mandatory int) cases.Verdict {
	if detected == mandatory {
		return cases.VerdictIssuesFound
	}
	return cases.VerdictPass
}

// Indeterminate reports whether any mandatory finding in the score carried an
// indeterminate match result.
func (s CaseScore) Indeterminate() bool {
	for _, fr := range s.Findings {
		if fr.Finding.MustDetect && fr.Match.Indeterminate {
			return true
		}
	}
	return false
}
