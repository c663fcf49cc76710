// Package suite orchestrates a full evaluation run: case discovery, blind
// report generation, semantic matching, scoring, and report rendering.
// Cases are mutually independent and run under a bounded worker pool; per-case
// failures are recorded in that case's score and never abort the run.
package suite

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"plugineval/internal/cases"
	"plugineval/internal/logging"
	"plugineval/internal/matcher"
	"plugineval/internal/review"
	"plugineval/internal/scorer"
)

// FindingMatcher is the slice of the matcher the suite depends on.
type FindingMatcher interface {
	Match(ctx context.Context, finding cases.Finding, reports []review.Report) matcher.MatchResult
}

// Result is the consolidated outcome of one suite run. Cases are sorted by
// name so repeated runs over the same artifacts render identically.
type Result struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	DurationMS    int64              `json:"duration_ms"`
	Cases         []scorer.CaseScore `json:"cases"`
	Total         int                `json:"total"`
	Passed        int                `json:"passed"`
	Failed        int                `json:"failed"`
	Indeterminate int                `json:"indeterminate"`
	AllPassed     bool               `json:"all_passed"`
}

// Options tunes the runner.
type Options struct {
	MaxConcurrentCases int
	Kinds              []review.Kind // defaults to all generator kinds
}

// Runner wires the pipeline stages together. It holds no mutable state
// between runs and is safe to re-run against the same artifacts.
type Runner struct {
	generator review.Generator
	matcher   FindingMatcher
	opts      Options
}

// NewRunner creates a suite runner.
func NewRunner(generator review.Generator, m FindingMatcher, opts Options) *Runner {
	if opts.MaxConcurrentCases <= 0 {
		opts.MaxConcurrentCases = 4
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = review.Kinds
	}
	return &Runner{generator: generator, matcher: m, opts: opts}
}

// Run evaluates every case under root. The returned error is non-nil only
// when the root itself is unusable; individual case failures are recorded in
// the result so CI sees the full picture in one pass.
func (r *Runner) Run(ctx context.Context, root string) (*Result, error) {
	started := time.Now().UTC()
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}
	logging.Suite("run %s starting against %s", res.RunID, root)

	refs, discoveryFailures, err := cases.Locate(root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	for _, df := range discoveryFailures {
		res.Cases = append(res.Cases, scorer.Failed(df.CaseName, "discovery: "+df.Error()))
	}

	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrentCases)
	for _, ref := range refs {
		g.Go(func() error {
			score := r.runCase(ctx, ref)
			mu.Lock()
			res.Cases = append(res.Cases, score)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait is just the join barrier.
	_ = g.Wait()

	sort.Slice(res.Cases, func(i, j int) bool { return res.Cases[i].CaseName < res.Cases[j].CaseName })
	for _, cs := range res.Cases {
		res.Total++
		if cs.Passed {
			res.Passed++
		} else {
			res.Failed++
		}
		if cs.Indeterminate() {
			res.Indeterminate++
		}
	}
	res.AllPassed = res.Total > 0 && res.Failed == 0
	res.DurationMS = time.Since(started).Milliseconds()

	logging.Suite("run %s finished: %d/%d passed (%d indeterminate)",
		res.RunID, res.Passed, res.Total, res.Indeterminate)
	return res, nil
}

// runCase executes the per-case pipeline. Report generation sees only the
// blind Ref; the finding model is loaded strictly after all reports for the
// case are captured.
func (r *Runner) runCase(ctx context.Context, ref cases.Ref) scorer.CaseScore {
	reports, err := r.generateReports(ctx, ref)
	if err != nil {
		logging.SuiteWarn("case %s: %v", ref.Name, err)
		return scorer.Failed(ref.Name, err.Error())
	}

	// Blind-evaluation barrier: ground truth enters scope only past this
	// point, after every generator call for the case has returned.
	exp, err := cases.LoadExpected(ref)
	if err != nil {
		return scorer.Failed(ref.Name, err.Error())
	}
	c := cases.Assemble(ref, exp)

	results := make([]matcher.MatchResult, len(c.Findings))
	var mg errgroup.Group
	for i, f := range c.Findings {
		mg.Go(func() error {
			results[i] = r.matcher.Match(ctx, f, reports)
			return nil
		})
	}
	_ = mg.Wait()

	return scorer.Score(c, results)
}

// generateReports runs all generators for a case concurrently. It takes a
// Ref — not a Case — so the generator path cannot see findings or the
// expected verdict even by accident.
func (r *Runner) generateReports(ctx context.Context, ref cases.Ref) ([]review.Report, error) {
	reports := make([]review.Report, len(r.opts.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range r.opts.Kinds {
		g.Go(func() error {
			text, err := r.generator.Generate(gctx, kind, ref.ArtifactPath)
			if err != nil {
				return err
			}
			reports[i] = review.Report{Kind: kind, CaseName: ref.Name, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
