package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/vistag/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Print every valid tag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := taxonomy.Default()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# taxonomy %s\n", reg.Version())
		for _, tag := range reg.Tags() {
			fmt.Fprintln(out, tag)
		}
		return nil
	},
}
