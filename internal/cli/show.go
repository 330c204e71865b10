package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var noMedia bool

	cmd := &cobra.Command{
		Use:   "show <listing-id>",
		Short: "Show listing details",
		Long:  "Show full details for one active listing, including its photos.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			p, err := rt.properties.Get(cmd.Context(), args[0], !noMedia)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("listing %s not found", args[0])
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printPropertySummary(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noMedia, "no-media", false, "skip fetching photos")

	return cmd
}
