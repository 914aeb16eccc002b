package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/recordvault/pkg/api"
	"github.com/ssargent/recordvault/pkg/keys"
)

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Generate and derive record addresses",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a random owner address",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			owner, err := keys.NewOwner()
			if err != nil {
				return err
			}
			cmd.Println(owner.String())
			return nil
		}),
	}

	deriveCmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a record address from a namespace and an owner",
		Long: `Derive the deterministic record address for a namespace and an owner
under the configured program ID.

Example:
  vault key derive --namespace ticket --owner 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin`,
		Args: cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			namespace, _ := cmd.Flags().GetString("namespace")
			ownerText, _ := cmd.Flags().GetString("owner")

			owner, err := keys.ParseAddress(ownerText)
			if err != nil {
				return err
			}
			deriver, err := e.cfg.Deriver()
			if err != nil {
				return err
			}
			addr, bump, err := deriver.Derive(namespace, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.DeriveResponse{
				Address:   addr.String(),
				Bump:      bump,
				ProgramID: deriver.ProgramID().String(),
			})
		}),
	}
	deriveCmd.Flags().String("namespace", "", "Namespace seed (required)")
	deriveCmd.Flags().String("owner", "", "Owner address (required)")
	_ = deriveCmd.MarkFlagRequired("namespace")
	_ = deriveCmd.MarkFlagRequired("owner")

	keyCmd.AddCommand(newCmd, deriveCmd)
	return keyCmd
}
