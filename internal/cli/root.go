// Package cli defines the cobra command tree for the listings service.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagDB     string
	flagConfig string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "listings",
		Short:         "Search Paragon MLS listings",
		Long:          "Search active listings from a Paragon RESO feed by location, price, and size, from the command line or over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default: ~/.config/listings/listings.db)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ~/.config/listings/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newShowCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)

	return root
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}
