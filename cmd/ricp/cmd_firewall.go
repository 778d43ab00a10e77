package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ricp/internal/fingerprint"
	"ricp/internal/runner"
)

var firewallBadOnly bool

// firewallCmd inspects the fingerprint index behind the predictive firewall
var firewallCmd = &cobra.Command{
	Use:   "firewall",
	Short: "List the fingerprint index behind the predictive firewall",
	Long: `Prints every indexed handoff transformation with its occurrence count
and historical verdict. Any non-SAFE entry preemptively blocks an exact
structural match in future runs.`,
	RunE: showFirewall,
}

func init() {
	firewallCmd.Flags().BoolVar(&firewallBadOnly, "bad-only", false, "only show entries that block")
}

func showFirewall(cmd *cobra.Command, args []string) error {
	r, err := runner.New(dataDir)
	if err != nil {
		return err
	}
	defer r.Close()

	entries := r.Firewall().Entries()
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "fingerprint index is empty; nothing blocks")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tHANDOFF\tSEEN\tLOSSES\tINVARIANT\tVERDICT")
	shown := 0
	for _, e := range entries {
		if firewallBadOnly && e.Verdict == fingerprint.VerdictSafe {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Hash, e.Handoff, len(e.Occurrences), e.LossOccurrences, e.InvariantOccurrences, e.Verdict)
		shown++
	}
	tw.Flush()
	if shown == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no blocking entries")
	}
	return nil
}
