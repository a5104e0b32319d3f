package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jpequegn/txnbench/internal/report"
	"github.com/spf13/cobra"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a previously saved run report",
	Long: `Report loads a JSON run report written by 'txnbench run --output' and
prints a per-transaction-type summary table.

Example:
  txnbench report --input report.json`,
	RunE: renderReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("input", "i", "", "input run report JSON file (required)")
	_ = reportCmd.MarkFlagRequired("input")
}

func renderReport(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	body, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}
	r, err := report.FromJSON(body)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", input, err)
	}

	fmt.Printf("Run: %s -> %s (%s, %d workers)\n",
		r.StartedAt.Format("15:04:05"), r.FinishedAt.Format("15:04:05"), r.DBType, r.WorkerCount)
	fmt.Printf("%-16s %8s %8s %8s %8s\n", "Transaction", "Success", "Abort", "Retry", "Errors")
	for _, tx := range r.Transactions {
		fmt.Printf("%-16s %8d %8d %8d %8d\n", tx.Name, tx.Success, tx.Abort, tx.Retry, tx.Errors)
		for msg, count := range tx.Aborts {
			fmt.Printf("    abort %q: %d\n", msg, count)
		}
	}
	fmt.Printf("Latency samples: %d\n", len(r.Samples))
	return nil
}

// writeReport renders r as indented JSON to path, or stdout if path is
// empty, so 'run' and 'report' agree on exactly one on-disk shape.
func writeReport(r report.RunReport, path string) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if path == "" {
		fmt.Println(string(body))
		return nil
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
