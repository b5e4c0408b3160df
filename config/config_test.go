package config

import (
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/require"
)

const exampleYAML = `
server:
  endpoint: localhost:8008
  cors_origins: ["https://custody.example.com"]
vault:
  owner: "0x00000000000000000000000000000000000000aA"
  token: "0xbb9bfab8fED247886061Adb5236b898C74D49706"
  withdraw_enabled: true
  max_withdraw_amount: "1.5"
  decimals: 18
  withdrawers:
    - "0x0000000000000000000000000000000000000b0b"
  journal: /tmp/custody/journal
ledger:
  backend: inmemory
  genesis:
    - token: "0xbb9bfab8fED247886061Adb5236b898C74D49706"
      account: "0x0000000000000000000000000000000000000a11"
      amount: "1000000"
log:
  level: debug
  format: json
metrics:
  pull_endpoint: localhost:8009
`

func TestInitConfig(t *testing.T) {
	cfg, err := initConfig(rawbytes.Provider([]byte(exampleYAML)))
	require.NoError(t, err)

	require.Equal(t, "localhost:8008", cfg.Server.Endpoint)
	require.Equal(t, []string{"https://custody.example.com"}, cfg.Server.CORSOrigins)

	require.Equal(t, ethCommon.HexToAddress("0xaa"), cfg.Vault.OwnerAddress())
	require.Equal(t, ethCommon.Address{}, cfg.Vault.VaultAddress())
	require.Equal(t, ethCommon.HexToAddress("0xbb9bfab8fED247886061Adb5236b898C74D49706"), cfg.Vault.TokenAddress())
	require.True(t, cfg.Vault.WithdrawEnabled)
	max, err := cfg.Vault.MaxWithdraw()
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", max.String())
	require.Equal(t, []ethCommon.Address{ethCommon.HexToAddress("0xb0b")}, cfg.Vault.WithdrawerAddresses())
	require.Equal(t, "/tmp/custody/journal", cfg.Vault.Journal)

	require.Equal(t, BackendInMemory, cfg.Ledger.BackendKind())
	require.Len(t, cfg.Ledger.Genesis, 1)
	amount, err := cfg.Ledger.Genesis[0].BaseUnits()
	require.NoError(t, err)
	require.Equal(t, "1000000", amount.String())

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "localhost:8009", cfg.Metrics.PullEndpoint)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CUSTODY_VAULT__MAX_WITHDRAW_AMOUNT", "2")
	t.Setenv("CUSTODY_SERVER__ENDPOINT", "0.0.0.0:9000")

	cfg, err := initConfig(rawbytes.Provider([]byte(exampleYAML)))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Endpoint)
	max, err := cfg.Vault.MaxWithdraw()
	require.NoError(t, err)
	require.Equal(t, "2000000000000000000", max.String())
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"bad owner", `
vault:
  owner: nope
  journal: /tmp/j
`},
		{"missing journal", `
vault:
  owner: "0x00000000000000000000000000000000000000aa"
`},
		{"bad max", `
vault:
  owner: "0x00000000000000000000000000000000000000aa"
  max_withdraw_amount: "-1"
  journal: /tmp/j
`},
		{"max above uint256", `
vault:
  owner: "0x00000000000000000000000000000000000000aa"
  max_withdraw_amount: "115792089237316195423570985008687907853269984665640564039457584007913129639936"
  journal: /tmp/j
`},
		{"genesis above uint256", `
ledger:
  backend: inmemory
  genesis:
    - token: "0x00000000000000000000000000000000000000bb"
      account: "0x00000000000000000000000000000000000000aa"
      amount: "115792089237316195423570985008687907853269984665640564039457584007913129639936"
`},
		{"bad withdrawer", `
vault:
  owner: "0x00000000000000000000000000000000000000aa"
  withdrawers: ["0x12"]
  journal: /tmp/j
`},
		{"bad backend", `
ledger:
  backend: cockroach
`},
		{"postgres without endpoint", `
ledger:
  backend: postgres
`},
		{"server without vault", `
server:
  endpoint: localhost:8008
ledger:
  backend: inmemory
`},
		{"bad log level", `
log:
  level: loud
  format: json
`},
		{"bad metrics", `
metrics:
  pull_endpoint: ""
`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := initConfig(rawbytes.Provider([]byte(tc.yaml)))
			require.Error(t, err)
		})
	}
}

func TestLedgerBackend(t *testing.T) {
	var lb LedgerBackend
	require.NoError(t, lb.Set("Postgres"))
	require.Equal(t, BackendPostgres, lb)
	require.Equal(t, "postgres", lb.String())
	require.Error(t, lb.Set("cockroach"))
}

func TestSampleConfigs(t *testing.T) {
	for _, f := range []string{"../conf/server.yml", "../conf/postgres.yml"} {
		t.Run(f, func(t *testing.T) {
			cfg, err := InitConfig(f)
			require.NoError(t, err)
			require.NotNil(t, cfg.Server)
			require.NotNil(t, cfg.Vault)
			require.NotNil(t, cfg.Ledger)
		})
	}
}
