// Package config enables config file parsing.
package config

import (
	"fmt"
	"strings"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/log"
)

// Config contains the CLI configuration.
type Config struct {
	Server  *ServerConfig  `koanf:"server"`
	Vault   *VaultConfig   `koanf:"vault"`
	Ledger  *LedgerConfig  `koanf:"ledger"`
	Log     *LogConfig     `koanf:"log"`
	Metrics *MetricsConfig `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Server != nil {
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		if cfg.Vault == nil {
			return fmt.Errorf("server: no vault config provided")
		}
		if cfg.Ledger == nil {
			return fmt.Errorf("server: no ledger config provided")
		}
	}
	if cfg.Vault != nil {
		if err := cfg.Vault.Validate(); err != nil {
			return fmt.Errorf("vault: %w", err)
		}
	}
	if cfg.Ledger != nil {
		if err := cfg.Ledger.Validate(); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// ServerConfig contains the API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// CORSOrigins lists the origins allowed to call the API. Empty allows any.
	CORSOrigins []string `koanf:"cors_origins"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	return nil
}

// VaultConfig contains the vault deployment.
//
// Token, WithdrawEnabled, MaxWithdrawAmount and Withdrawers are applied
// once, when the vault starts with an empty journal. Afterwards the journal
// is authoritative and changes go through the API.
type VaultConfig struct {
	// Owner is the administrator of the vault.
	Owner string `koanf:"owner"`

	// Address is the vault's custody account. Derived from Owner if empty.
	Address string `koanf:"address"`

	// Token is the designated token.
	Token string `koanf:"token"`

	WithdrawEnabled bool `koanf:"withdraw_enabled"`

	// MaxWithdrawAmount is the per-call withdrawal ceiling, as a decimal
	// amount of whole tokens with `Decimals` decimals.
	MaxWithdrawAmount string `koanf:"max_withdraw_amount"`

	// Decimals of the designated token.
	Decimals uint8 `koanf:"decimals"`

	// Withdrawers are granted the withdrawer role.
	Withdrawers []string `koanf:"withdrawers"`

	// Journal is the directory of the event journal.
	Journal string `koanf:"journal"`
}

// Validate validates the vault configuration.
func (cfg *VaultConfig) Validate() error {
	if _, err := common.ParseAddress(cfg.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if cfg.Address != "" {
		if _, err := common.ParseAddress(cfg.Address); err != nil {
			return fmt.Errorf("address: %w", err)
		}
	}
	if cfg.Token != "" {
		if _, err := common.ParseAddress(cfg.Token); err != nil {
			return fmt.Errorf("token: %w", err)
		}
	}
	if _, err := cfg.MaxWithdraw(); err != nil {
		return fmt.Errorf("max_withdraw_amount: %w", err)
	}
	for _, w := range cfg.Withdrawers {
		if _, err := common.ParseAddress(w); err != nil {
			return fmt.Errorf("withdrawers: %w", err)
		}
	}
	if cfg.Journal == "" {
		return fmt.Errorf("invalid journal path '%s'", cfg.Journal)
	}
	return nil
}

// OwnerAddress returns the parsed owner. Only valid after Validate.
func (cfg *VaultConfig) OwnerAddress() ethCommon.Address {
	return ethCommon.HexToAddress(cfg.Owner)
}

// VaultAddress returns the parsed vault address, or the zero address.
func (cfg *VaultConfig) VaultAddress() ethCommon.Address {
	if cfg.Address == "" {
		return common.ZeroAddress
	}
	return ethCommon.HexToAddress(cfg.Address)
}

// TokenAddress returns the parsed token, or the zero address.
func (cfg *VaultConfig) TokenAddress() ethCommon.Address {
	if cfg.Token == "" {
		return common.ZeroAddress
	}
	return ethCommon.HexToAddress(cfg.Token)
}

// WithdrawerAddresses returns the parsed withdrawers.
func (cfg *VaultConfig) WithdrawerAddresses() []ethCommon.Address {
	addrs := make([]ethCommon.Address, 0, len(cfg.Withdrawers))
	for _, w := range cfg.Withdrawers {
		addrs = append(addrs, ethCommon.HexToAddress(w))
	}
	return addrs
}

// MaxWithdraw returns the ceiling in base units. Empty means zero.
func (cfg *VaultConfig) MaxWithdraw() (common.BigInt, error) {
	if cfg.MaxWithdrawAmount == "" {
		return common.NewBigInt(0), nil
	}
	return parseAmount(cfg.MaxWithdrawAmount, cfg.Decimals)
}

func parseAmount(s string, decimals uint8) (common.BigInt, error) {
	v, err := common.ParseUnits(s, decimals)
	if err != nil {
		return common.BigInt{}, err
	}
	if v.Sign() < 0 {
		return common.BigInt{}, fmt.Errorf("negative amount '%s'", s)
	}
	if v.Cmp(ledger.MaxUint256) > 0 {
		return common.BigInt{}, fmt.Errorf("amount '%s' exceeds uint256", s)
	}
	return v, nil
}

// LedgerBackend is an asset ledger backend.
type LedgerBackend uint

const (
	// BackendInMemory is the in-memory ledger backend.
	BackendInMemory LedgerBackend = iota
	// BackendPostgres is the PostgreSQL ledger backend.
	BackendPostgres
)

// String returns the string representation of a LedgerBackend.
func (lb *LedgerBackend) String() string {
	switch *lb {
	case BackendInMemory:
		return "inmemory"
	case BackendPostgres:
		return "postgres"
	default:
		panic("config: unsupported ledger backend")
	}
}

// Set sets the LedgerBackend to the value specified by the provided string.
func (lb *LedgerBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "inmemory":
		*lb = BackendInMemory
	case "postgres":
		*lb = BackendPostgres
	default:
		return fmt.Errorf("config: invalid ledger backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported LedgerBackends.
func (lb *LedgerBackend) Type() string {
	return "[inmemory,postgres]"
}

// LedgerConfig contains the asset ledger configuration.
type LedgerConfig struct {
	// Backend is the ledger backend to select.
	Backend string `koanf:"backend"`

	// Endpoint is the database connection string of the postgres backend.
	Endpoint string `koanf:"endpoint"`

	// Migrations is the directory containing schema migrations. If set,
	// they are applied on startup.
	Migrations string `koanf:"migrations"`

	// Genesis balances, minted once per ledger. The inmemory backend starts
	// empty, so it mints them on every start.
	Genesis []GenesisAllocation `koanf:"genesis"`

	// If true, all ledger tables are dropped on startup.
	WipeStorage bool `koanf:"DANGER__WIPE_STORAGE_ON_STARTUP"`
}

// GenesisAllocation is an initial balance.
type GenesisAllocation struct {
	Token    string `koanf:"token"`
	Account  string `koanf:"account"`
	Amount   string `koanf:"amount"`
	Decimals uint8  `koanf:"decimals"`
}

// Validate validates the ledger configuration.
func (cfg *LedgerConfig) Validate() error {
	var lb LedgerBackend
	if err := lb.Set(cfg.Backend); err != nil {
		return err
	}
	if lb == BackendPostgres && cfg.Endpoint == "" {
		return fmt.Errorf("malformed storage endpoint '%s'", cfg.Endpoint)
	}
	for i, g := range cfg.Genesis {
		if _, err := common.ParseAddress(g.Token); err != nil {
			return fmt.Errorf("genesis[%d].token: %w", i, err)
		}
		if _, err := common.ParseAddress(g.Account); err != nil {
			return fmt.Errorf("genesis[%d].account: %w", i, err)
		}
		if _, err := g.BaseUnits(); err != nil {
			return fmt.Errorf("genesis[%d].amount: %w", i, err)
		}
	}
	return nil
}

// BackendKind returns the parsed backend. Only valid after Validate.
func (cfg *LedgerConfig) BackendKind() LedgerBackend {
	var lb LedgerBackend
	_ = lb.Set(cfg.Backend)
	return lb
}

// TokenAddress returns the parsed token. Only valid after Validate.
func (g *GenesisAllocation) TokenAddress() ethCommon.Address {
	return ethCommon.HexToAddress(g.Token)
}

// AccountAddress returns the parsed account. Only valid after Validate.
func (g *GenesisAllocation) AccountAddress() ethCommon.Address {
	return ethCommon.HexToAddress(g.Account)
}

// BaseUnits returns the allocated amount in base units.
func (g *GenesisAllocation) BaseUnits() (common.BigInt, error) {
	return parseAmount(g.Amount, g.Decimals)
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	var format log.Format
	if err := format.Set(cfg.Format); err != nil {
		return err
	}
	var level log.Level
	return level.Set(cfg.Level)
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider("CUSTODY_", ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CUSTODY_")), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
