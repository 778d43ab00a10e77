package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ricp/internal/runner"
)

var (
	mortalityLimit int
	mortalityReset bool
)

// mortalityCmd inspects the longitudinal mortality index
var mortalityCmd = &cobra.Command{
	Use:   "mortality",
	Short: "Show the longitudinal mortality profile of every shape",
	Long: `Prints each tracked shape's weakest-link survival rate, classification,
and trend, plus the most dangerous handoffs by death count.

--reset clears the index. Resetting loses all longitudinal history.`,
	RunE: showMortality,
}

func init() {
	mortalityCmd.Flags().IntVar(&mortalityLimit, "limit", 10, "maximum rows per ranking")
	mortalityCmd.Flags().BoolVar(&mortalityReset, "reset", false, "clear the mortality index")
}

func showMortality(cmd *cobra.Command, args []string) error {
	r, err := runner.New(dataDir)
	if err != nil {
		return err
	}
	defer r.Close()

	if mortalityReset {
		if err := r.Tracker().Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "mortality index cleared")
		return nil
	}

	a := r.Tracker().Analyze(mortalityLimit)
	if a.TotalShapes == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no mortality observations recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tracked shapes: %d\n", a.TotalShapes)
	for status, n := range a.CountsByStatus {
		fmt.Fprintf(out, "  %s: %d\n", status, n)
	}

	fmt.Fprintln(out, "\nmost vulnerable shapes:")
	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHAPE\tRATE\tSTATUS\tTREND\tRUNS")
	for _, rec := range a.MostVulnerable {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%d\n",
			rec.ShapeID, rec.OverallRate, rec.Classification, rec.Trend, rec.Runs)
	}
	tw.Flush()

	if len(a.MostDangerous) > 0 {
		fmt.Fprintln(out, "\nmost dangerous handoffs:")
		for _, h := range a.MostDangerous {
			fmt.Fprintf(out, "  %s: %d deaths\n", h.Handoff, h.Deaths)
		}
	}
	return nil
}
