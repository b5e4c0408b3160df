// Package common implements common custody command options.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdLog "log"
	"net/http"
	"os"
	"time"

	"github.com/akrylysov/pogreb"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"       // support file scheme for golang_migrate
	flag "github.com/spf13/pflag"

	"github.com/oasisprotocol/custody/config"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/ledger/memory"
	ledgerPostgres "github.com/oasisprotocol/custody/ledger/postgres"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/storage/postgres"
)

const (
	cfgLogLevel  = "log.level"
	cfgLogFormat = "log.format"
)

var (
	rootLogger = log.NewDefaultLogger("custody")

	flagLogLevel  = log.LevelInfo
	flagLogFormat = log.FmtJSON

	// LoggingFlags override the log section of the config file.
	LoggingFlags = flag.NewFlagSet("", flag.ContinueOnError)
)

// Init initializes the common environment.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug

	// Initialize custody logging.
	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	if LoggingFlags.Changed(cfgLogLevel) {
		level = flagLogLevel
	}
	if LoggingFlags.Changed(cfgLogFormat) {
		format = flagLogFormat
	}
	logger, err := log.NewLogger("custody", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))

	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewLedger creates the configured asset ledger. For the postgres backend
// it wipes the storage if requested and applies pending migrations.
func NewLedger(ctx context.Context, cfg *config.LedgerConfig, logger *log.Logger) (ledger.Ledger, error) {
	switch backend := cfg.BackendKind(); backend {
	case config.BackendInMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		client, err := postgres.NewClient(cfg.Endpoint, logger)
		if err != nil {
			return nil, err
		}
		if cfg.WipeStorage {
			logger.Warn("wiping storage")
			if err := client.Wipe(ctx); err != nil {
				client.Close()
				return nil, err
			}
			logger.Info("storage wiped")
		}
		if cfg.Migrations != "" {
			if err := RunMigrations(cfg.Migrations, cfg.Endpoint, logger); err != nil {
				client.Close()
				return nil, err
			}
		}
		return ledgerPostgres.New(client, logger), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %v", backend.String())
	}
}

// RunMigrations applies all pending migrations found at `source` (a
// golang-migrate source URL, e.g. file://storage/migrations).
func RunMigrations(source string, endpoint string, logger *log.Logger) error {
	m, err := migrate.New(source, endpoint)
	if err != nil {
		logger.Error("migrator failed to start",
			"error", err,
		)
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch err = m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no migrations needed to be applied")
	case err != nil:
		logger.Error("migrations failed",
			"error", err,
		)
		return err
	default:
		logger.Info("migrations completed")
	}
	return nil
}

// RunServer serves handler at endpoint until ctx is canceled, then shuts
// the server down gracefully.
func RunServer(ctx context.Context, endpoint string, handler http.Handler, logger *log.Logger) error {
	server := &http.Server{
		Addr:           endpoint,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down server", "endpoint", endpoint)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func init() {
	LoggingFlags.Var(&flagLogLevel, cfgLogLevel, "minimum log level, overrides the config file")
	LoggingFlags.Var(&flagLogFormat, cfgLogFormat, "log format, overrides the config file")
}
