package store

import (
	"path/filepath"
	"testing"
	"time"

	"plugineval/internal/cases"
	"plugineval/internal/matcher"
	"plugineval/internal/scorer"
	"plugineval/internal/suite"
)

func sampleResult(runID string, started time.Time) *suite.Result {
	return &suite.Result{
		RunID:      runID,
		StartedAt:  started,
		DurationMS: 1234,
		Cases: []scorer.CaseScore{
			{
				CaseName: "sqli",
				Findings: []scorer.FindingResult{{
					Finding: cases.Finding{Category: "SQL Injection", Severity: cases.SeverityHigh, Description: "d", MustDetect: true},
					Match:   matcher.MatchResult{Detected: true, Evidence: "e"},
				}},
				ActualVerdict: cases.VerdictIssuesFound,
				Passed:        true,
			},
			{
				CaseName:      "xss",
				Passed:        false,
				FailureReason: "missed mandatory findings: XSS",
				ActualVerdict: cases.VerdictPass,
			},
		},
		Total:     2,
		Passed:    1,
		Failed:    1,
		AllPassed: false,
	}
}

func TestSaveAndListRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := s.SaveRun(sampleResult("run-1", base)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(sampleResult("run-2", base.Add(time.Hour))); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Errorf("runs not newest-first: %v, %v", runs[0].RunID, runs[1].RunID)
	}
	if runs[1].Total != 2 || runs[1].Passed != 1 || runs[1].Failed != 1 {
		t.Errorf("counts = %+v", runs[1])
	}
	if runs[1].AllPassed {
		t.Error("AllPassed should round-trip as false")
	}
	if !runs[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", runs[1].StartedAt, base)
	}
}

func TestListRunsLimit(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		res := sampleResult("run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveRun(res); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(3)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("got %d runs, want 3", len(runs))
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	res := sampleResult("dup", time.Now().UTC())
	if err := s.SaveRun(res); err != nil {
		t.Fatalf("first SaveRun: %v", err)
	}
	if err := s.SaveRun(res); err == nil {
		t.Fatal("duplicate run_id should fail")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveRun(sampleResult("persisted", time.Now().UTC())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	runs, err := s2.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "persisted" {
		t.Errorf("runs = %+v", runs)
	}
}
