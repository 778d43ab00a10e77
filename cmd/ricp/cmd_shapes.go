package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ricp/internal/shape"
)

// shapesCmd lists the compiled shape catalog
var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "List the compiled shape catalog",
	Long: `Prints every declared requirement shape with its tier, category, kind,
must-reach stage, and required attributes. The catalog is compiled into
the binary and cannot be edited at runtime.`,
	RunE: listShapes,
}

func listShapes(cmd *cobra.Command, args []string) error {
	reg := shape.DefaultRegistry()
	if err := reg.Validate(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHAPE\tTIER\tKIND\tCATEGORY\tMUST REACH\tREQUIRED ATTRIBUTES")
	for _, d := range reg.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Criticality, d.Kind, d.Category, d.MustReachStage,
			strings.Join(d.RequiredAttributes, ", "))
	}
	return tw.Flush()
}
