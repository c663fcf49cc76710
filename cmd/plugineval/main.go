// plugineval verifies that automated review commands actually detect known,
// planted issues. It runs review generators blind against flawed sample
// artifacts, asks a semantic judge whether each expected finding appears in
// the generated reports, and renders a pass/fail report for CI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plugineval/internal/cases"
	"plugineval/internal/config"
	"plugineval/internal/judge"
	"plugineval/internal/logging"
	"plugineval/internal/matcher"
	"plugineval/internal/review"
	"plugineval/internal/store"
	"plugineval/internal/suite"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// run flags
	outputJSON string
	outputMD   string
	pretty     bool
	noHistory  bool

	// history flags
	historyLimit int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "plugineval",
	Short: "Blind evaluation harness for plugin review commands",
	Long: `plugineval runs security and performance review generators against
deliberately flawed sample plugins and verifies that every planted issue is
actually surfaced in the generated reports.

The harness is blind: the code path that invokes the generators never sees
the expected findings, which are loaded only after all reports for a case
have been captured. Detection is decided by a semantic judge that must cite
verbatim evidence from the report text.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// runCmd executes the full evaluation suite.
var runCmd = &cobra.Command{
	Use:   "run [case-root]",
	Short: "Run the evaluation suite and report pass/fail per case",
	Long: `Discovers evaluation cases under the case root, generates review
reports for each artifact, matches expected findings against the report text
via the semantic judge, and renders a consolidated report.

Exits non-zero if any case fails or is indeterminate on a mandatory finding.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSuite,
}

// listCmd enumerates cases without touching ground truth.
var listCmd = &cobra.Command{
	Use:   "list [case-root]",
	Short: "List discovered cases (names and artifact paths only)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listCases,
}

// validateCmd checks that every case directory parses cleanly.
var validateCmd = &cobra.Command{
	Use:   "validate [case-root]",
	Short: "Validate case directories and finding models without running generators",
	Args:  cobra.MaximumNArgs(1),
	RunE:  validateCases,
}

// historyCmd prints recent suite runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent suite runs from the run-history store",
	RunE:  showHistory,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".plugineval/config.yaml", "Path to config file")

	runCmd.Flags().StringVar(&outputJSON, "output", "", "Write JSON results to this path")
	runCmd.Flags().StringVar(&outputMD, "report", "", "Write markdown report to this path")
	runCmd.Flags().BoolVar(&pretty, "pretty", false, "Render the report to the terminal")
	runCmd.Flags().BoolVar(&noHistory, "no-history", false, "Skip persisting the run to the history store")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")

	rootCmd.AddCommand(runCmd, listCmd, validateCmd, historyCmd)
}

// loadConfig resolves configuration for a command invocation. Environment
// overrides are applied here, at the entry point, and nowhere else.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides(os.LookupEnv)
	if len(args) > 0 {
		cfg.Evals.Root = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if cfg.Judge.APIKey == "" {
		return fmt.Errorf("judge API key not configured (set EVALS_ANTHROPIC_API_KEY or GEMINI_API_KEY)")
	}
	if cfg.Generators.Security.Command == "" && cfg.Generators.Performance.Command == "" {
		return fmt.Errorf("no generator commands configured (set generators.security.command / generators.performance.command)")
	}

	client, err := judge.NewClient(ctx, judge.Config{
		Provider: cfg.Judge.Provider,
		APIKey:   cfg.Judge.APIKey,
		Model:    cfg.Judge.Model,
		BaseURL:  cfg.Judge.BaseURL,
		Timeout:  cfg.Judge.Timeout(),
	})
	if err != nil {
		return err
	}

	m := matcher.New(client, matcher.Config{
		MaxRetries:     cfg.Judge.MaxRetries,
		InitialBackoff: cfg.Judge.InitialBackoff(),
		AttemptTimeout: cfg.Judge.Timeout(),
		JudgeSlots:     int64(cfg.Evals.JudgeSlots),
	})
	gen := review.NewCommandRunner(
		cfg.Generators.Security.Command,
		cfg.Generators.Performance.Command,
		cfg.Generators.Timeout(),
	)
	runner := suite.NewRunner(gen, m, suite.Options{
		MaxConcurrentCases: cfg.Evals.MaxConcurrentCases,
	})

	logger.Info("starting evaluation suite",
		zap.String("root", cfg.Evals.Root),
		zap.Int("max_concurrent_cases", cfg.Evals.MaxConcurrentCases))

	start := time.Now()
	res, err := runner.Run(ctx, cfg.Evals.Root)
	if err != nil {
		return err
	}

	if outputJSON != "" {
		if err := suite.WriteJSON(res, outputJSON); err != nil {
			return err
		}
		fmt.Printf("Results saved to: %s\n", outputJSON)
	}
	if outputMD != "" {
		if err := suite.WriteMarkdown(res, outputMD); err != nil {
			return err
		}
		fmt.Printf("Report saved to: %s\n", outputMD)
	}

	if !noHistory {
		if s, serr := store.Open(cfg.Store.DatabasePath); serr != nil {
			logger.Warn("run history unavailable", zap.Error(serr))
		} else {
			if serr := s.SaveRun(res); serr != nil {
				logger.Warn("failed to persist run", zap.Error(serr))
			}
			_ = s.Close()
		}
	}

	printSummary(res, time.Since(start))

	if !res.AllPassed {
		return fmt.Errorf("%d of %d cases failed", res.Failed, res.Total)
	}
	return nil
}

func listCases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	refs, failures, err := cases.Locate(cfg.Evals.Root)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		rel, rerr := filepath.Rel(cfg.Evals.Root, ref.ArtifactPath)
		if rerr != nil {
			rel = ref.ArtifactPath
		}
		fmt.Printf("%-24s %s\n", ref.Name, rel)
	}
	for _, df := range failures {
		fmt.Printf("%-24s MALFORMED: %s\n", df.CaseName, df.Reason)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d malformed case directories", len(failures))
	}
	return nil
}

func validateCases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	refs, failures, err := cases.Locate(cfg.Evals.Root)
	if err != nil {
		return err
	}

	bad := len(failures)
	for _, df := range failures {
		fmt.Printf("FAIL %-24s %s\n", df.CaseName, df.Error())
	}
	for _, ref := range refs {
		exp, lerr := cases.LoadExpected(ref)
		if lerr != nil {
			fmt.Printf("FAIL %-24s %v\n", ref.Name, lerr)
			bad++
			continue
		}
		mandatory := 0
		for _, f := range exp.Findings {
			if f.MustDetect {
				mandatory++
			}
		}
		fmt.Printf("OK   %-24s %d findings (%d mandatory), expected %s\n",
			ref.Name, len(exp.Findings), mandatory, exp.ExpectedVerdict)
	}
	if bad > 0 {
		return fmt.Errorf("%d invalid cases", bad)
	}
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-38s %-20s %7s %7s %7s %s\n", "RUN", "STARTED", "TOTAL", "PASSED", "FAILED", "RESULT")
	for _, r := range runs {
		fmt.Printf("%-38s %-20s %7d %7d %7d %s\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Total, r.Passed, r.Failed, styleResult(r.AllPassed))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
