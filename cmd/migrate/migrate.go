// Package migrate implements the migrate sub-command.
package migrate

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oasisprotocol/custody/cmd/common"
	"github.com/oasisprotocol/custody/config"
	"github.com/oasisprotocol/custody/log"
)

const (
	moduleName = "migrate"
)

var (
	// Path to the configuration file.
	configFile string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger schema migrations",
		Run:   runMigrations,
	}
)

func runMigrations(cmd *cobra.Command, args []string) {
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

	switch {
	case cfg.Ledger == nil:
		logger.Error("ledger config not provided")
		os.Exit(1)
	case cfg.Ledger.BackendKind() != config.BackendPostgres:
		logger.Info("ledger backend has no schema", "backend", cfg.Ledger.Backend)
		return
	case cfg.Ledger.Migrations == "":
		logger.Error("no migrations source configured")
		os.Exit(1)
	}

	if err := common.RunMigrations(cfg.Ledger.Migrations, cfg.Ledger.Endpoint, logger); err != nil {
		os.Exit(1)
	}
}

// Register registers the migrate sub-command.
func Register(parentCmd *cobra.Command) {
	migrateCmd.Flags().StringVar(&configFile, "config", "./conf/server.yml", "path to the config.yml file")
	parentCmd.AddCommand(migrateCmd)
}
