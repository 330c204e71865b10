package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Check feed credentials",
		Long:  "Obtain a feed access token (reusing a stored one when valid) and print when it expires. The token itself is never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newDeps(cmd.Context(), os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			tok, err := rt.feed.Tokens().Token(cmd.Context())
			if err != nil {
				return err
			}

			if isJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"expires": tok.Expiration.Format(time.RFC3339),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token valid until %s (%s)\n",
				tok.Expiration.Local().Format(time.RFC1123),
				time.Until(tok.Expiration).Round(time.Second))
			return nil
		},
	}
}
