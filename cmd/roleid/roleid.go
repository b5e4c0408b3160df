// Package roleid implements the role-id sub-command.
package roleid

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oasisprotocol/custody/vault"
)

var roleIDCmd = &cobra.Command{
	Use:   "role-id <NAME>",
	Short: "Print the identifier of a named role",
	Long:  "Print the 32-byte identifier of a role, computed as keccak256 of its name (e.g. WITHDRAWER_ROLE).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), RoleID(args[0]))
		return err
	},
}

// RoleID returns the hex identifier of the named role.
func RoleID(name string) string {
	if name == "DEFAULT_ADMIN_ROLE" {
		return vault.DefaultAdminRole.String()
	}
	return vault.RoleFromName(name).String()
}

// Register registers the role-id sub-command.
func Register(parentCmd *cobra.Command) {
	parentCmd.AddCommand(roleIDCmd)
}
