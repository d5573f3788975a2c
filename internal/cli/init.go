package cli

import (
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the node identity",
		Long: `Create the node's P-256 identity if none exists and print its node id.

Running init again loads the existing identity. The private key is held
in memory only and is never written to disk.

Example:
  fieldnode init --db ./node.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts.Config, false)
			if err != nil {
				return err
			}
			defer a.Close()

			id, created, err := a.identity.Ensure(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to create identity", err)
			}
			return rootOpts.formatter(cmd).Success(identityView{Identity: id, Created: created})
		},
	}
}
