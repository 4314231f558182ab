package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tendant/tenx-pipeline/internal/watcher"
	"github.com/tendant/tenx-pipeline/pkg/runner"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>...",
	Short: "Store project documents",
	Long: `Import stores each project document under its project_id so it can be
processed with "run". Documents of other library construction methods are
skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	r, err := runner.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer r.Shutdown(shutdownTimeout)

	var failed int
	for _, path := range args {
		key, err := r.Import(cmd.Context(), path)
		switch {
		case errors.Is(err, watcher.ErrFiltered):
			printStatus("⚠", fmt.Sprintf("%s: %v", path, err), color.FgYellow)
		case err != nil:
			failed++
			printStatus("✗", fmt.Sprintf("%s: %v", path, err), color.FgRed)
		default:
			printStatus("✓", fmt.Sprintf("%s stored as %s", path, key), color.FgGreen)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be imported", failed, len(args))
	}
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
