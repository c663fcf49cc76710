package cases

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"plugineval/internal/logging"
)

// expectedFileName is the on-disk finding model. The schema is an external
// contract fixed by the surrounding tooling.
const expectedFileName = "expected.json"

// Ref is the minimal, blind view of a case: enough to invoke report
// generators and nothing more. Generator code paths must only ever receive
// Refs, never Cases.
type Ref struct {
	Name         string
	Dir          string
	ArtifactPath string
}

// DiscoveryError reports a malformed or incomplete case directory.
// Fatal for that case, non-fatal for the suite.
type DiscoveryError struct {
	CaseName string
	Dir      string
	Reason   string
	Err      error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("case %s: %s: %v", e.CaseName, e.Reason, e.Err)
	}
	return fmt.Sprintf("case %s: %s", e.CaseName, e.Reason)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Locate enumerates case directories under root in lexical name order.
// It stat-checks that each case has a finding model and an artifact but never
// opens the finding model, preserving the blind-evaluation invariant.
//
// Each case directory must contain expected.json plus exactly one other
// entry (file or directory): the artifact the generators inspect. Keeping
// the artifact separate from expected.json means the generators are handed a
// path that cannot leak ground truth. An entry literally named "artifact" is
// preferred when several are present.
//
// Per-case problems are returned as DiscoveryErrors alongside the refs that
// located cleanly; the returned error is non-nil only when root itself is
// unreadable.
func Locate(root string) ([]Ref, []*DiscoveryError, error) {
	timer := logging.StartTimer(logging.CategoryCases, "Locate")
	defer timer.Stop()

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read case root %s: %w", root, err)
	}

	var refs []Ref
	var failures []*DiscoveryError
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(root, name)

		if _, err := os.Stat(filepath.Join(dir, expectedFileName)); err != nil {
			failures = append(failures, &DiscoveryError{
				CaseName: name, Dir: dir,
				Reason: "missing finding model " + expectedFileName, Err: err,
			})
			continue
		}

		artifact, derr := resolveArtifact(dir, name)
		if derr != nil {
			failures = append(failures, derr)
			continue
		}

		refs = append(refs, Ref{Name: name, Dir: dir, ArtifactPath: artifact})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	logging.Cases("located %d cases under %s (%d malformed)", len(refs), root, len(failures))
	return refs, failures, nil
}

// resolveArtifact picks the case's artifact entry without reading any file
// contents.
func resolveArtifact(dir, name string) (string, *DiscoveryError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &DiscoveryError{CaseName: name, Dir: dir, Reason: "unreadable case directory", Err: err}
	}

	var candidates []string
	for _, e := range entries {
		if e.Name() == expectedFileName {
			continue
		}
		candidates = append(candidates, e.Name())
	}

	switch {
	case len(candidates) == 0:
		return "", &DiscoveryError{CaseName: name, Dir: dir, Reason: "missing artifact"}
	case len(candidates) == 1:
		return filepath.Join(dir, candidates[0]), nil
	}
	for _, c := range candidates {
		if c == "artifact" {
			return filepath.Join(dir, c), nil
		}
	}
	return "", &DiscoveryError{
		CaseName: name, Dir: dir,
		Reason: fmt.Sprintf("ambiguous artifact: %d entries besides %s", len(candidates), expectedFileName),
	}
}

// expectedFile mirrors the external expected.json schema. must_detect
// defaults to true when omitted, matching the original tooling.
type expectedFile struct {
	EvalName         string            `json:"eval_name"`
	ExpectedVerdict  string            `json:"expected_verdict"`
	ExpectedFindings []expectedFinding `json:"expected_findings"`
}

type expectedFinding struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	MustDetect  *bool  `json:"must_detect"`
}

// LoadExpected parses the case's finding model. Callers must sequence this
// strictly after all reports for the case have been captured.
func LoadExpected(ref Ref) (*Expected, error) {
	logging.CasesDebug("loading expected findings for %s", ref.Name)

	data, err := os.ReadFile(filepath.Join(ref.Dir, expectedFileName))
	if err != nil {
		return nil, &DiscoveryError{CaseName: ref.Name, Dir: ref.Dir, Reason: "read finding model", Err: err}
	}

	var ef expectedFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return nil, &DiscoveryError{CaseName: ref.Name, Dir: ref.Dir, Reason: "malformed finding model", Err: err}
	}

	verdict, err := ParseVerdict(ef.ExpectedVerdict)
	if err != nil {
		return nil, &DiscoveryError{CaseName: ref.Name, Dir: ref.Dir, Reason: "invalid expected_verdict", Err: err}
	}

	findings := make([]Finding, 0, len(ef.ExpectedFindings))
	for i, f := range ef.ExpectedFindings {
		sev, err := ParseSeverity(f.Severity)
		if err != nil {
			return nil, &DiscoveryError{
				CaseName: ref.Name, Dir: ref.Dir,
				Reason: fmt.Sprintf("finding %d: invalid severity", i), Err: err,
			}
		}
		if f.Description == "" {
			return nil, &DiscoveryError{
				CaseName: ref.Name, Dir: ref.Dir,
				Reason: fmt.Sprintf("finding %d: empty description", i),
			}
		}
		mustDetect := true
		if f.MustDetect != nil {
			mustDetect = *f.MustDetect
		}
		findings = append(findings, Finding{
			Category:    f.Category,
			Severity:    sev,
			Description: f.Description,
			MustDetect:  mustDetect,
		})
	}

	name := ef.EvalName
	if name == "" {
		name = ref.Name
	}
	return &Expected{EvalName: name, Findings: findings, ExpectedVerdict: verdict}, nil
}
