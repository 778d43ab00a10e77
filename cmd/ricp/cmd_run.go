package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"ricp/internal/runner"
	"ricp/internal/trace"
)

var (
	runJSON   bool
	runPretty bool
)

// runCmd executes one control-plane pass over a trace bundle
var runCmd = &cobra.Command{
	Use:   "run [bundle.yaml]",
	Short: "Execute a control-plane pass over a trace bundle",
	Long: `Loads a tracer output bundle and runs the full sequence:
  1. Fingerprint every handoff and check the predictive firewall
  2. Record mortality observations
  3. Compute per-shape survival and apply the tier laws
  4. Fork execution tracks and generate repair directives as needed
  5. Search for minimal counterfactual cut sets on non-compliant runs
  6. Persist the mortality and fingerprint indexes

Exits non-zero when the decision is BLOCK_ALL or the firewall issued a
preemptive block, so the command can gate CI pipelines directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runBundle,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the report as JSON")
	runCmd.Flags().BoolVar(&runPretty, "pretty", false, "render the report with terminal styling")
}

func runBundle(cmd *cobra.Command, args []string) error {
	b, err := trace.LoadBundle(args[0])
	if err != nil {
		return err
	}

	r, err := runner.New(dataDir)
	if err != nil {
		return err
	}
	defer r.Close()

	rep, err := r.ExecuteRun(cmd.Context(), b)
	if err != nil {
		return err
	}

	if runJSON {
		raw, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(rep.Markdown()))
	}

	if rep.PreemptivelyBlocked || !rep.Decision.IsWireExecutionAllowed() {
		os.Exit(2)
	}
	return nil
}

// renderMarkdown styles the report for the terminal when requested, falling
// back to the raw markdown on any renderer failure.
func renderMarkdown(md string) string {
	if !runPretty {
		return md
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
