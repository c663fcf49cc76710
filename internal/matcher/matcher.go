// Package matcher decides whether an expected finding is substantively
// present in a case's freeform review reports. Exact string or regex matching
// against report text produces unacceptable false negatives, so the
// comparison is delegated to an external semantic judge. The judge's claim is
// only trusted when it cites evidence that verifiably appears in one of the
// reports; an affirmative answer without verifiable evidence is treated as
// not detected.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"plugineval/internal/cases"
	"plugineval/internal/judge"
	"plugineval/internal/logging"
	"plugineval/internal/review"
)

// MatchResult is the outcome of matching one finding against a case's
// reports. Indeterminate marks results where the judge could not be reached
// after retries; these must never be counted as conclusive by callers.
type MatchResult struct {
	Detected      bool   `json:"detected"`
	Evidence      string `json:"evidence"`
	Rationale     string `json:"rationale"`
	Indeterminate bool   `json:"indeterminate,omitempty"`
}

// Config tunes the matcher's retry and concurrency policy.
type Config struct {
	MaxRetries     int           // transient-failure retries per finding
	InitialBackoff time.Duration // doubles on each retry
	AttemptTimeout time.Duration // per judge attempt
	JudgeSlots     int64         // global concurrent judge-call budget
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.JudgeSlots <= 0 {
		c.JudgeSlots = 5
	}
	return c
}

// Matcher consults the judge service with a bounded concurrency budget.
// Findings are matched independently; a single Matcher is shared by all
// concurrently-running cases so the slot budget is global.
type Matcher struct {
	client judge.LLMClient
	slots  *semaphore.Weighted
	cfg    Config
}

// New creates a Matcher around a judge client.
func New(client judge.LLMClient, cfg Config) *Matcher {
	cfg = cfg.withDefaults()
	return &Matcher{
		client: client,
		slots:  semaphore.NewWeighted(cfg.JudgeSlots),
		cfg:    cfg,
	}
}

// Match determines whether the finding is substantively present in any of the
// reports. It never returns an error: transient judge failures degrade to an
// indeterminate result after the retry budget is exhausted.
func (m *Matcher) Match(ctx context.Context, finding cases.Finding, reports []review.Report) MatchResult {
	combined := combineReports(reports)
	if combined == "" {
		return MatchResult{Detected: false, Rationale: "no report text produced for this case"}
	}

	systemPrompt := judgeSystemPrompt
	userPrompt := buildUserPrompt(finding, combined)

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.cfg.InitialBackoff << uint(attempt-1)
			logging.MatcherDebug("judge retry %d for %q in %v", attempt, finding.Category, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return indeterminate("indeterminate: canceled while waiting to retry judge")
			}
		}

		response, err := m.judgeOnce(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			if errors.Is(err, judge.ErrUnavailable) {
				continue
			}
			// Permanent failure, retrying cannot help.
			logging.JudgeWarn("judge permanent failure for %q: %v", finding.Category, err)
			return indeterminate(fmt.Sprintf("indeterminate: judge error: %v", err))
		}

		parsed, perr := parseJudgeResponse(response)
		if perr != nil {
			// Malformed output is treated like a transient fault; judges at
			// temperature zero occasionally still wrap or mangle the JSON.
			lastErr = perr
			logging.JudgeWarn("unparseable judge response for %q: %v", finding.Category, perr)
			continue
		}

		return m.evaluate(finding, parsed, reports)
	}

	logging.JudgeWarn("judge unavailable for %q after %d retries: %v", finding.Category, m.cfg.MaxRetries, lastErr)
	return indeterminate("indeterminate: judge unavailable")
}

func indeterminate(rationale string) MatchResult {
	return MatchResult{Detected: false, Rationale: rationale, Indeterminate: true}
}

// judgeOnce performs a single judge call under the global slot budget.
func (m *Matcher) judgeOnce(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", judge.ErrUnavailable, err)
	}
	defer m.slots.Release(1)

	actx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	defer cancel()
	return m.client.CompleteWithSystem(actx, systemPrompt, userPrompt)
}

// evaluate applies the evidence gate to the judge's verdict.
func (m *Matcher) evaluate(finding cases.Finding, parsed *judgeResponse, reports []review.Report) MatchResult {
	if !parsed.Present {
		rationale := parsed.Rationale
		if rationale == "" {
			rationale = "judge: finding not present in any report"
		}
		return MatchResult{Detected: false, Rationale: rationale}
	}

	evidence := strings.TrimSpace(parsed.Evidence)
	if evidence == "" {
		logging.Matcher("rejecting evidence-free affirmation for %q", finding.Category)
		return MatchResult{
			Detected:  false,
			Rationale: "judge affirmed presence without citing evidence; treated as not detected",
		}
	}

	if !evidenceInReports(evidence, reports) {
		logging.Matcher("rejecting unverifiable evidence for %q: %s", finding.Category, truncate(evidence, 120))
		return MatchResult{
			Detected:  false,
			Rationale: "judge evidence could not be verified against report text; treated as not detected",
		}
	}

	rationale := parsed.Rationale
	if rationale == "" {
		rationale = "judge confirmed presence with verifiable evidence"
	}
	return MatchResult{Detected: true, Evidence: evidence, Rationale: rationale}
}

// evidenceInReports checks that the cited excerpt is a span of one of the
// reports, tolerating case and whitespace differences. Reports are opaque
// text; this is deliberately plain containment, not structural parsing.
func evidenceInReports(evidence string, reports []review.Report) bool {
	needle := normalizeSpan(evidence)
	if needle == "" {
		return false
	}
	for _, r := range reports {
		if strings.Contains(normalizeSpan(r.Text), needle) {
			return true
		}
	}
	return false
}

// normalizeSpan lowercases, strips backticks and markdown emphasis, and
// collapses all whitespace runs so quoting style differences don't defeat
// the containment check.
func normalizeSpan(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("`", "", "**", "", "*", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// judgeResponse is the structured contract with the judge service.
type judgeResponse struct {
	Present   bool   `json:"present"`
	Evidence  string `json:"evidence"`
	Rationale string `json:"rationale"`
}

// parseJudgeResponse extracts the JSON object from the judge's reply,
// tolerating markdown code fences and surrounding prose.
func parseJudgeResponse(response string) (*judgeResponse, error) {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var jr judgeResponse
	if err := json.Unmarshal([]byte(text), &jr); err == nil {
		return &jr, nil
	}

	// Fall back to the outermost brace span.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &jr); err != nil {
		return nil, fmt.Errorf("parse judge JSON: %w", err)
	}
	return &jr, nil
}

const judgeSystemPrompt = `You are evaluating whether security/performance review reports correctly detected an expected issue.

Be generous in interpretation: if any report mentions the issue in any reasonable way, count it as present. The section name and severity label in the reports do not need to match the expected finding; only the core issue matters.

You MUST cite evidence: copy the exact sentence or snippet from the report that shows the issue was detected. If the issue is not present, say so.

Respond with JSON only, in this exact format:
{
  "present": true/false,
  "evidence": "verbatim excerpt from a report, or empty string",
  "rationale": "brief explanation of the decision"
}`

// buildUserPrompt assembles the judge payload: the finding (category and
// severity are advisory context) and the full text of all reports.
func buildUserPrompt(finding cases.Finding, combinedReports string) string {
	var b strings.Builder
	b.WriteString("## Expected Finding\n\n")
	fmt.Fprintf(&b, "- [%s] %s: %s\n\n", finding.Severity, finding.Category, finding.Description)
	b.WriteString("## Generated Review Reports\n\n")
	b.WriteString(combinedReports)
	b.WriteString("\n## Task\n\nDetermine whether ANY of the review reports above detected the expected finding.")
	return b.String()
}

// combineReports concatenates non-empty report texts under per-kind headings.
func combineReports(reports []review.Report) string {
	var b strings.Builder
	for _, r := range reports {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		switch r.Kind {
		case review.KindSecurity:
			b.WriteString("## Security Review Report\n\n")
		case review.KindPerformance:
			b.WriteString("## Performance Review Report\n\n")
		default:
			fmt.Fprintf(&b, "## %s Review Report\n\n", r.Kind)
		}
		b.WriteString("```\n")
		b.WriteString(truncate(r.Text, maxReportChars))
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

const maxReportChars = 24000

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
