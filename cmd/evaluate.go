/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codearena/judge/internal/judge0"
	"github.com/codearena/judge/internal/logging"
	"github.com/codearena/judge/internal/services"
	"github.com/codearena/judge/internal/storage"
	"github.com/codearena/judge/internal/testcases"
	"github.com/codearena/judge/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const previewLimit = 200

var errNotAllPassed = errors.New("not all test cases passed")

var (
	evalProblemID  int
	evalLanguageID int
	evalSourceFile string
	evalArchiveDir string
)

// evaluateCmd runs one submission from the command line without the API.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a source file against a problem's test cases",
	Long: `Evaluates a source file against the test-case archive of a problem kept
in a local directory, using the configured execution engine. Usage:

	judge evaluate --problem 1 --language 71 --file solution.py --archives ./testcases

The exit status is non-zero unless every test case passes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source, err := os.ReadFile(evalSourceFile)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}

		dir := evalArchiveDir
		if dir == "" {
			dir = cfg.Storage.LocalDir
		}
		local, err := storage.NewLocalDir(dir)
		if err != nil {
			return err
		}

		log := logging.NewOrNop()
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		evaluator := services.NewEvaluator(
			cfg.Evaluation,
			testcases.NewRepository(storage.NewStorage(local)),
			judge0.NewClient(cfg.Engine, nil),
			nil,
			nil,
			log,
		)

		report, err := evaluator.Evaluate(ctx, string(source), types.LanguageID(evalLanguageID), evalProblemID)
		if err != nil {
			return err
		}

		printReport(cmd.OutOrStdout(), report)
		if !report.AllPassed {
			return errNotAllPassed
		}
		return nil
	},
}

func printReport(w io.Writer, report types.EvaluationReport) {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, r := range report.Results {
		verdict := fail("FAIL")
		if r.Passed {
			verdict = pass("PASS")
		}
		fmt.Fprintf(w, "#%-3d %s  %-22s %s\n", r.Index+1, verdict, r.StatusLabel, dim(fmt.Sprintf("%dms", r.ExecutionTimeMs)))
		if !r.Passed {
			fmt.Fprintf(w, "     expected: %s\n", preview(r.ExpectedOutput))
			fmt.Fprintf(w, "     actual:   %s\n", preview(r.ActualOutput))
		}
	}

	summary := fmt.Sprintf("Passed %d out of %d test cases.", report.PassedCount, report.TotalCount)
	if report.AllPassed {
		fmt.Fprintln(w, pass(summary))
		return
	}
	fmt.Fprintln(w, fail(summary))
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > previewLimit {
		s = string(runes[:previewLimit]) + "..."
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().IntVar(&evalProblemID, "problem", 0, "problem id")
	evaluateCmd.Flags().IntVar(&evalLanguageID, "language", int(types.LanguagePython), "engine language id")
	evaluateCmd.Flags().StringVar(&evalSourceFile, "file", "", "source file to evaluate")
	evaluateCmd.Flags().StringVar(&evalArchiveDir, "archives", "", "directory holding problem_<id> archives (defaults to STORAGE_LOCAL_DIR)")
	_ = evaluateCmd.MarkFlagRequired("problem")
	_ = evaluateCmd.MarkFlagRequired("file")
}
