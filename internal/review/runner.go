// Package review invokes the external report generators. Generators are
// opaque: they take an artifact path and produce freeform markdown on stdout
// within a bounded time. A generator that fails or times out is fatal for its
// case; no retries happen at this layer.
package review

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"plugineval/internal/logging"
)

// Kind identifies which analyzer produced a report.
type Kind string

const (
	KindSecurity    Kind = "security"
	KindPerformance Kind = "performance"
)

// Kinds lists all generator kinds in stable order.
var Kinds = []Kind{KindSecurity, KindPerformance}

// Report is an opaque text blob tagged with its origin and case. No internal
// structure beyond markdown headings is assumed anywhere downstream.
type Report struct {
	Kind     Kind
	CaseName string
	Text     string
}

// Generator produces a review report for an artifact.
type Generator interface {
	Generate(ctx context.Context, kind Kind, artifactPath string) (string, error)
}

// GeneratorFailure reports a crashed or timed-out generator.
type GeneratorFailure struct {
	Kind     Kind
	TimedOut bool
	Output   string
	Err      error
}

func (e *GeneratorFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("generator %s timed out", e.Kind)
	}
	return fmt.Sprintf("generator %s failed: %v", e.Kind, e.Err)
}

func (e *GeneratorFailure) Unwrap() error { return e.Err }

// CommandRunner runs each generator as an external shell command. The command
// template receives the artifact path via the {artifact} placeholder.
type CommandRunner struct {
	commands map[Kind]string
	timeout  time.Duration
}

// NewCommandRunner builds a runner from per-kind command templates. Kinds
// with an empty command are disabled and yield an empty report.
func NewCommandRunner(security, performance string, timeout time.Duration) *CommandRunner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CommandRunner{
		commands: map[Kind]string{
			KindSecurity:    security,
			KindPerformance: performance,
		},
		timeout: timeout,
	}
}

// Generate runs the configured command for kind against the artifact and
// returns its stdout as the report text.
func (r *CommandRunner) Generate(ctx context.Context, kind Kind, artifactPath string) (string, error) {
	tpl, ok := r.commands[kind]
	if !ok {
		return "", &GeneratorFailure{Kind: kind, Err: fmt.Errorf("unknown generator kind %q", kind)}
	}
	if strings.TrimSpace(tpl) == "" {
		logging.Review("generator %s not configured, skipping", kind)
		return "", nil
	}

	command := strings.ReplaceAll(tpl, "{artifact}", artifactPath)
	logging.Review("running %s generator: %s", kind, command)

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := runShell(tctx, command)
	if tctx.Err() != nil {
		logging.ReviewError("generator %s timed out after %v", kind, time.Since(start))
		return "", &GeneratorFailure{Kind: kind, TimedOut: true, Output: out, Err: tctx.Err()}
	}
	if err != nil {
		logging.ReviewError("generator %s failed: %v", kind, err)
		return "", &GeneratorFailure{Kind: kind, Output: out, Err: err}
	}

	logging.Review("generator %s produced %d bytes in %v", kind, len(out), time.Since(start))
	return out, nil
}

func runShell(ctx context.Context, command string) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", command)
	} else {
		cmd = exec.CommandContext(ctx, "bash", "-lc", command)
	}

	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("command failed (%s): %w", command, err)
	}
	return string(out), nil
}
