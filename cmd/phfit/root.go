package main

import (
	"github.com/spf13/cobra"
)

var verbose bool

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "phfit",
		Short: "Determine sample pH from NMR chemical shifts of reference buffers",
		Long: `phfit infers sample pH (and optionally temperature, ionic strength and
per-nucleus reference offsets) from observed chemical shifts of reference
buffer molecules, using a database of buffer equilibrium parameters.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newCalcCommand())
	root.AddCommand(newCurveCommand())
	return root
}
