package serve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/config"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/ledger/memory"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/vault"
)

const (
	owner      = "0x1000000000000000000000000000000000000001"
	token      = "0x2000000000000000000000000000000000000002"
	withdrawer = "0x3000000000000000000000000000000000000003"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: &config.ServerConfig{Endpoint: "localhost:0"},
		Vault: &config.VaultConfig{
			Owner:             owner,
			Token:             token,
			WithdrawEnabled:   true,
			MaxWithdrawAmount: "100",
			Withdrawers:       []string{withdrawer},
			Journal:           filepath.Join(t.TempDir(), "journal"),
		},
		Ledger: &config.LedgerConfig{
			Backend: "inmemory",
			Genesis: []config.GenesisAllocation{
				{Token: token, Account: owner, Amount: "1000"},
			},
		},
	}
}

func TestNewServiceBootstrap(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	s, err := NewService(ctx, cfg, log.NewDefaultLogger("test"))
	require.NoError(t, err)

	status, err := s.vault.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, cfg.Vault.TokenAddress(), status.Token)
	require.True(t, status.WithdrawEnabled)
	require.Equal(t, "100", status.MaxWithdrawAmount.String())
	require.Equal(t, uint64(4), status.LastSequence)
	require.True(t, s.vault.HasRole(vault.WithdrawerRole, cfg.Vault.WithdrawerAddresses()[0]))

	balance, err := s.ledger.BalanceOf(ctx, cfg.Vault.TokenAddress(), cfg.Vault.OwnerAddress())
	require.NoError(t, err)
	require.Equal(t, "1000", balance.String())

	require.NoError(t, s.Close())
}

func TestNewServiceRestoresJournal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := log.NewDefaultLogger("test")

	s, err := NewService(ctx, cfg, logger)
	require.NoError(t, err)
	ownerAddr := cfg.Vault.OwnerAddress()
	require.NoError(t, s.vault.SetWithdrawEnable(ctx, ownerAddr, false))
	require.NoError(t, s.Close())

	// The journal wins over the config once it has history.
	s, err = NewService(ctx, cfg, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	status, err := s.vault.Status(ctx)
	require.NoError(t, err)
	require.False(t, status.WithdrawEnabled)
	require.Equal(t, uint64(5), status.LastSequence)

	events, err := s.journal.Load()
	require.NoError(t, err)
	require.Len(t, events, 5)
}

func TestBootstrapDefaults(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Vault.Token = ""
	cfg.Vault.WithdrawEnabled = false
	cfg.Vault.MaxWithdrawAmount = ""
	cfg.Vault.Withdrawers = nil
	cfg.Ledger.Genesis = nil

	s, err := NewService(ctx, cfg, log.NewDefaultLogger("test"))
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	status, err := s.vault.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), status.LastSequence)
	require.False(t, status.WithdrawEnabled)
}

func TestGenesisAppliedOnceAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Vault.Token = ""
	cfg.Vault.WithdrawEnabled = false
	cfg.Vault.MaxWithdrawAmount = ""
	cfg.Vault.Withdrawers = nil
	require.NoError(t, cfg.Validate())

	// A persistent ledger outlives the service, unlike a fresh inmemory one.
	l := memory.New()
	for i := 0; i < 3; i++ {
		s, err := newService(ctx, cfg, l, log.NewDefaultLogger("test"))
		require.NoError(t, err)

		events, err := s.journal.Load()
		require.NoError(t, err)
		require.Empty(t, events)

		balance, err := l.BalanceOf(ctx, cfg.Ledger.Genesis[0].TokenAddress(), cfg.Vault.OwnerAddress())
		require.NoError(t, err)
		require.Equal(t, "1000", balance.String(), "start %d", i)
		require.NoError(t, s.Close())
	}
}

func TestInvalidGenesisFailsStartup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	// Each allocation fits in uint256, their sum does not.
	cfg.Ledger.Genesis = append(cfg.Ledger.Genesis, config.GenesisAllocation{
		Token:   token,
		Account: owner,
		Amount:  "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	})
	require.NoError(t, cfg.Validate())

	l := memory.New()
	_, err := newService(ctx, cfg, l, log.NewDefaultLogger("test"))
	require.ErrorIs(t, err, ledger.ErrAmountOverflow)

	// Nothing from the rejected genesis was credited.
	balance, err := l.BalanceOf(ctx, cfg.Vault.TokenAddress(), cfg.Vault.OwnerAddress())
	require.NoError(t, err)
	require.Equal(t, "0", balance.String())
}
