package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ricp/internal/runner"
	"ricp/internal/trace"
)

// cutsCmd searches for minimal counterfactual cut sets
var cutsCmd = &cobra.Command{
	Use:   "cuts [bundle.yaml]",
	Short: "Search for minimal counterfactual cut sets for a bundle",
	Long: `Replays hypothetical scenarios over the bundle and reports the smallest
scenario combinations whose projection would have made the run compliant.
Nothing is recorded; the search is read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: showCuts,
}

func showCuts(cmd *cobra.Command, args []string) error {
	b, err := trace.LoadBundle(args[0])
	if err != nil {
		return err
	}

	r, err := runner.New(dataDir)
	if err != nil {
		return err
	}
	defer r.Close()

	sets, err := r.CutSets(cmd.Context(), b)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no cut sets: the run is either already compliant or unrecoverable")
		return nil
	}

	for i, s := range sets {
		names := make([]string, 0, len(s.Scenarios))
		for _, k := range s.Scenarios {
			names = append(names, string(k))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d. {%s} projected RSR %.2f (gain %+.2f)\n",
			i+1, strings.Join(names, ", "), s.ProjectedGlobalRSR, s.Gain)
	}
	return nil
}
