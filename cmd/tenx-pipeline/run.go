package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tendant/tenx-pipeline/internal/orchestrator"
	"github.com/tendant/tenx-pipeline/pkg/pipeline"
	"github.com/tendant/tenx-pipeline/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run <project-key>",
	Short: "Process one project and wait for every sample",
	Long: `Run processes the project stored under the given key, waits for every
sample job and prints one line per sample. The command fails unless the
project ends completed.

With --run-id the project is processed under an earlier run id. When the
durable runtime is enabled, samples of that run wait for their recovered
workflows instead of submitting new jobs.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("run-id", "", "Resume an earlier run id instead of starting a new run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer r.Shutdown(shutdownTimeout)

	var result orchestrator.RunResult
	if runID, _ := cmd.Flags().GetString("run-id"); runID != "" {
		result = r.Resume(ctx, runID, args[0])
	} else {
		result = r.Run(ctx, args[0])
	}
	printSummary(os.Stdout, result)
	return resultError(result)
}

// resultError is nil only for a completed project
func resultError(result orchestrator.RunResult) error {
	if result.Status == pipeline.StatusCompleted {
		return nil
	}
	if result.Reason != "" {
		return fmt.Errorf("project %s is %s: %s", result.ProjectKey, result.Status, result.Reason)
	}
	return fmt.Errorf("project %s is %s", result.ProjectKey, result.Status)
}

func printSummary(w io.Writer, result orchestrator.RunResult) {
	fmt.Fprintf(w, "Project %s (run %s): %s\n", result.ProjectKey, result.RunID, result.Status)
	if result.Reason != "" {
		fmt.Fprintf(w, "  %s\n", result.Reason)
	}
	for _, s := range result.Samples {
		symbol, attr := outcomeGlyph(s.Outcome)
		line := s.SampleID
		if s.Pipeline != "" {
			line += " [" + s.Pipeline + "]"
		}
		if s.JobID != "" {
			line += " job " + s.JobID
		}
		if s.Reason != "" {
			line += ": " + s.Reason
		}
		fmt.Fprintf(w, "%s %s\n", color.New(attr).Sprint(symbol), line)
	}
}

func outcomeGlyph(outcome pipeline.Outcome) (string, color.Attribute) {
	switch outcome {
	case pipeline.OutcomeSuccess:
		return "✓", color.FgGreen
	case pipeline.OutcomeSkipped:
		return "⚠", color.FgYellow
	default:
		return "✗", color.FgRed
	}
}
