package roleid

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/vault"
)

func TestRoleID(t *testing.T) {
	require.Equal(t, vault.WithdrawerRole.String(), RoleID("WITHDRAWER_ROLE"))
	require.Equal(t, "0x"+string(bytes.Repeat([]byte("0"), 64)), RoleID("DEFAULT_ADMIN_ROLE"))
}

func TestRoleIDCommand(t *testing.T) {
	root := &cobra.Command{Use: "custody"}
	Register(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"role-id", "WITHDRAWER_ROLE"})
	require.NoError(t, root.Execute())
	require.Equal(t, vault.WithdrawerRole.String()+"\n", out.String())

	root.SetArgs([]string{"role-id"})
	require.Error(t, root.Execute())
}
