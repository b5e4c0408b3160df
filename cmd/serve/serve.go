// Package serve implements the serve sub-command.
package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oasisprotocol/custody/api"
	"github.com/oasisprotocol/custody/cmd/common"
	"github.com/oasisprotocol/custody/config"
	"github.com/oasisprotocol/custody/journal"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/metrics"
	"github.com/oasisprotocol/custody/vault"
)

const (
	moduleName = "serve"
)

var (
	// Path to the configuration file.
	configFile string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the custody vault API",
		Run:   runServer,
	}
)

func runServer(cmd *cobra.Command, args []string) {
	// Initialize config.
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}

	// Initialize common environment.
	if err = common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"error", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger().WithModule(moduleName)

	if cfg.Server == nil {
		logger.Error("server config not provided")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := NewService(ctx, cfg, logger)
	if err != nil {
		logger.Error("service failed to start",
			"error", err,
		)
		os.Exit(1)
	}

	runErr := service.Run(ctx)
	if err := service.Close(); err != nil {
		logger.Error("failed to close service", "error", err)
	}
	if runErr != nil {
		logger.Error("service stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

// Service is the custody vault API service.
type Service struct {
	cfg     *config.Config
	ledger  ledger.Ledger
	journal *journal.Journal
	vault   *vault.Vault
	metrics *metrics.PullService
	logger  *log.Logger
}

// NewService opens the ledger and the journal and brings the vault up to
// date with its recorded history.
func NewService(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Service, error) {
	l, err := common.NewLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return newService(ctx, cfg, l, logger)
}

// newService takes ownership of l and closes it on failure.
func newService(ctx context.Context, cfg *config.Config, l ledger.Ledger, logger *log.Logger) (s *Service, err error) {
	s = &Service{cfg: cfg, ledger: l, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.journal, err = journal.Open(cfg.Vault.Journal, logger); err != nil {
		return nil, err
	}
	if cfg.Metrics != nil {
		if s.metrics, err = metrics.NewPullService(cfg.Metrics.PullEndpoint, logger); err != nil {
			return nil, err
		}
	}

	s.vault, err = vault.New(vault.Options{
		Owner:   cfg.Vault.OwnerAddress(),
		Address: cfg.Vault.VaultAddress(),
		Ledger:  s.ledger,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	history, err := s.journal.Load()
	if err != nil {
		return nil, err
	}
	if err = s.vault.Restore(history); err != nil {
		return nil, fmt.Errorf("restore vault: %w", err)
	}
	// Events emitted from here on are journaled.
	s.vault.AddSink(s.journal)

	// Bootstrapping an empty config emits nothing, so an empty journal does
	// not prove a first start. It only gates the vault settings, which are
	// safe to apply again; the ledger tracks its own genesis.
	if len(history) == 0 {
		if err = bootstrap(ctx, s.vault, cfg.Vault); err != nil {
			return nil, fmt.Errorf("bootstrap vault: %w", err)
		}
	}
	if err = applyGenesis(ctx, s.ledger, cfg.Ledger.Genesis, logger); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	return s, nil
}

// bootstrap applies the configured vault settings through the owner, so
// that they are journaled like any later change.
func bootstrap(ctx context.Context, v *vault.Vault, cfg *config.VaultConfig) error {
	owner := v.Owner()
	if token := cfg.TokenAddress(); token != v.TokenAddress() {
		if err := v.SetToken(ctx, owner, token); err != nil {
			return err
		}
	}
	if cfg.WithdrawEnabled {
		if err := v.SetWithdrawEnable(ctx, owner, true); err != nil {
			return err
		}
	}
	maxWithdraw, err := cfg.MaxWithdraw()
	if err != nil {
		return err
	}
	if maxWithdraw.Sign() > 0 {
		if err := v.SetMaxWithdrawAmount(ctx, owner, maxWithdraw.Ptr()); err != nil {
			return err
		}
	}
	for _, w := range cfg.WithdrawerAddresses() {
		if err := v.GrantRole(ctx, owner, vault.WithdrawerRole, w); err != nil {
			return err
		}
	}
	return nil
}

func applyGenesis(ctx context.Context, l ledger.Ledger, allocs []config.GenesisAllocation, logger *log.Logger) error {
	allocations := make([]ledger.Allocation, 0, len(allocs))
	for i := range allocs {
		g := &allocs[i]
		amount, err := g.BaseUnits()
		if err != nil {
			return fmt.Errorf("allocation %d: %w", i, err)
		}
		allocations = append(allocations, ledger.Allocation{
			Token:   g.TokenAddress(),
			Account: g.AccountAddress(),
			Amount:  amount.Ptr(),
		})
	}

	applied, err := l.ApplyGenesis(ctx, allocations)
	if err != nil {
		return err
	}
	if !applied {
		logger.Info("genesis already applied, skipping", "ledger", l.Name())
		return nil
	}
	for _, a := range allocations {
		logger.Info("minted genesis allocation",
			"token", a.Token.Hex(),
			"account", a.Account.Hex(),
			"amount", a.Amount.String(),
		)
	}
	return nil
}

// Run serves the API, and the metrics endpoint if configured, until ctx is
// canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	router := api.NewRouter(api.Options{
		Vault:       s.vault,
		Ledger:      s.ledger,
		Events:      s.journal,
		CORSOrigins: s.cfg.Server.CORSOrigins,
	}, s.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving vault api", "endpoint", s.cfg.Server.Endpoint)
		return common.RunServer(ctx, s.cfg.Server.Endpoint, router, s.logger)
	})
	if s.metrics != nil {
		g.Go(func() error {
			return s.metrics.Run(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the journal and the ledger.
func (s *Service) Close() error {
	var result *multierror.Error
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("journal: %w", err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("ledger: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Register registers the serve sub-command.
func Register(parentCmd *cobra.Command) {
	serveCmd.Flags().StringVar(&configFile, "config", "./conf/server.yml", "path to the config.yml file")
	parentCmd.AddCommand(serveCmd)
}
