package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tendant/tenx-pipeline/internal/decision"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Inspect the decision table",
}

var tableCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Parse the decision table and print its rules",
	Long: `Check parses the decision table (paths.decision_table unless a path is
given) and prints the rules as YAML. Unlike processing, which treats an
unreadable table as empty, check fails on any error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTableCheck,
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableCheckCmd)
}

func runTableCheck(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Paths.DecisionTable
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read decision table: %w", err)
	}
	table, err := decision.Parse(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s: %d rules\n", path, table.Len())
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(table.Rules())
}
