// Package cmd wires the secfeeds command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secfeeds",
		Short: "Security news and advisory feed aggregator.",
		Long: `secfeeds ingests security news and advisories from a fixed set of
remote sources (RSS/Atom feeds, an HTML advisory index, a slow JSON API and
the bulk NVD CVE document), normalizes and deduplicates the items, and keeps
a pruned, recent view of them in Postgres.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newFetchCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
