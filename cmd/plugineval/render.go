package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"plugineval/internal/suite"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func styleResult(passed bool) string {
	if passed {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// printSummary renders the suite outcome to the terminal. With --pretty the
// full markdown report goes through glamour; otherwise a compact plain
// summary is printed.
func printSummary(res *suite.Result, elapsed time.Duration) {
	if pretty {
		if out, err := renderPretty(res); err == nil {
			fmt.Print(out)
		} else {
			fmt.Print(suite.RenderMarkdown(res))
		}
	} else {
		for _, cs := range res.Cases {
			line := fmt.Sprintf("%s  %s", styleResult(cs.Passed), cs.CaseName)
			if cs.FailureReason != "" {
				line += dimStyle.Render("  (" + cs.FailureReason + ")")
			}
			fmt.Println(line)
		}
	}

	fmt.Println()
	summary := fmt.Sprintf("%d/%d cases passed in %s", res.Passed, res.Total, elapsed.Round(time.Millisecond))
	if res.Indeterminate > 0 {
		summary += fmt.Sprintf(", %d indeterminate", res.Indeterminate)
	}
	fmt.Printf("%s  %s\n", styleResult(res.AllPassed), summary)
}

func renderPretty(res *suite.Result) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(suite.RenderMarkdown(res))
}
