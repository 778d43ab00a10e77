package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ricp/internal/logging"
)

var (
	// Global flags
	dataDir string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ricp",
	Short: "ricp - requirement integrity control plane",
	Long: `ricp tracks requirement shapes through the content pipeline and enforces
survival policy on every run.

It consumes tracer output bundles (YAML), measures per-shape survival,
applies the fixed tier laws, forks triple-track execution when remediation
is possible, and maintains the longitudinal mortality and fingerprint
indexes behind the predictive firewall.

Thresholds and budgets are compiled into the binary. There is no flag,
file, or environment variable that softens a decision.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(dataDir, verbose); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".ricp", "directory for stores and logs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mortalityCmd)
	rootCmd.AddCommand(firewallCmd)
	rootCmd.AddCommand(cutsCmd)
	rootCmd.AddCommand(shapesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
