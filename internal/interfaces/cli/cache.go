package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the parse result cache",
	}
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached parse result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			purger, release, err := deps.NewCachePurger(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer release()

			n, err := purger.Purge(ctx)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("purged %d cached results", n))
			return nil
		},
	}
	cmd.AddCommand(purge)
	return cmd
}
