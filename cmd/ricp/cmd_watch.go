package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ricp/internal/report"
	"ricp/internal/runner"
)

// watchCmd runs the control plane continuously over a bundle directory
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and evaluate every new trace bundle",
	Long: `Watches a directory for new or rewritten bundle files (*.yaml, *.yml)
and executes a full control-plane pass on each. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: watchBundles,
}

func watchBundles(cmd *cobra.Command, args []string) error {
	r, err := runner.New(dataDir)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	w, err := runner.NewBundleWatcher(args[0], r, func(rep *report.RunReport) {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s (global RSR %.2f)\n",
			rep.RunID, rep.Decision.Action, rep.Decision.GlobalRSR)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n", args[0])

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	return nil
}
