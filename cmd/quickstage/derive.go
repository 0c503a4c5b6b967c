package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iconidentify/quickstage/internal/filename"
)

func newDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <locator>...",
		Short: "Print the cache stem and extension for each locator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOCATOR\tSTEM\tEXTENSION")
			for _, loc := range args {
				stem, ext := filename.Derive(loc)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", loc, stem, ext)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quickstage %s (built %s)\n", Version, BuildTime)
		},
	}
}
