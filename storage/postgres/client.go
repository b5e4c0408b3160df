// Package postgres implements the target storage interface
// backed by PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/metrics"
	"github.com/oasisprotocol/custody/storage"
)

const (
	moduleName = "postgres"
)

// Client is a client for connecting to PostgreSQL.
type Client struct {
	pool    *pgxpool.Pool
	logger  *log.Logger
	metrics metrics.LedgerDBMetrics
}

var _ storage.TargetStorage = (*Client)(nil)

// pgxLogger is a pgx-compatible logger interface that uses the service's
// standard logger as the backend.
type pgxLogger struct {
	logger *log.Logger
}

// logFuncForLevel maps a pgx log severity level to a corresponding logger function.
func (l *pgxLogger) logFuncForLevel(level tracelog.LogLevel) func(string, ...interface{}) {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return l.logger.Debug
	case tracelog.LogLevelInfo:
		return l.logger.Info
	case tracelog.LogLevelWarn:
		return l.logger.Warn
	case tracelog.LogLevelError, tracelog.LogLevelNone:
		return l.logger.Error
	default:
		l.logger.Warn("Unknown log level", "unknown_level", level)
		return l.logger.Info
	}
}

// Log implements the tracelog.Logger interface.
func (l *pgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	args := []interface{}{}
	for k, v := range data {
		args = append(args, k, v)
	}

	logFunc := l.logFuncForLevel(level)
	logFunc(msg, args...)
}

// NewClient creates a new PostgreSQL client.
func NewClient(connString string, l *log.Logger) (*Client, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	// For a log line to be produced, it needs to be >= the level specified
	// here, and >= the level of the underlying logger. "Info" level logs
	// every SQL statement executed.
	config.ConnConfig.Tracer = &tracelog.TraceLog{
		LogLevel: tracelog.LogLevelWarn,
		Logger: &pgxLogger{
			logger: l.WithModule(moduleName).With("db", config.ConnConfig.Database),
		},
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &Client{
		pool:    pool,
		logger:  l.WithModule(moduleName),
		metrics: metrics.NewLedgerDBMetrics(moduleName),
	}, nil
}

func (c *Client) observe(operation string) func(err error) {
	return c.metrics.Observe(operation)
}

// SendBatch submits a new batch of queries as an atomic transaction to PostgreSQL.
//
// Updated row counts are discarded; only atomic success or failure of the
// batch matters to callers.
func (c *Client) SendBatch(ctx context.Context, batch *storage.QueryBatch) (err error) {
	done := c.observe("batch")
	defer func() { done(err) }()

	if err = c.sendBatchFast(ctx, batch); err == nil {
		return nil
	}
	// The tx was reverted, so we can resubmit. This time one query at a time
	// for better error messages.
	return c.sendBatchSlow(ctx, batch)
}

// Under the hood, uses `pool.SendBatch(batch.AsPgxBatch())`, which happens in
// a single roundtrip to the server. However, if _any_ query is malformed, pgx
// reports the _first_ query as failing.
func (c *Client) sendBatchFast(ctx context.Context, batch *storage.QueryBatch) error {
	pgxBatch := batch.AsPgxBatch()
	batchResults := c.pool.SendBatch(ctx, &pgxBatch)
	defer func() {
		if err := batchResults.Close(); err != nil {
			c.logger.Warn("failed to close batch results", "err", err)
		}
	}()

	for i := 0; i < pgxBatch.Len(); i++ {
		if _, err := batchResults.Exec(); err != nil {
			return fmt.Errorf("query %d %v: %w", i, batch.Queries()[i], err)
		}
	}
	return nil
}

func (c *Client) sendBatchSlow(ctx context.Context, batch *storage.QueryBatch) error {
	return c.WithTx(ctx, pgx.TxOptions{}, func(tx storage.Tx) error {
		for i, q := range batch.Queries() {
			if _, err := tx.Exec(ctx, q.Cmd, q.Args...); err != nil {
				return fmt.Errorf("query %d %v: %w", i, q, err)
			}
		}
		return nil
	})
}

// Query submits a new read query to PostgreSQL.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		c.logger.Error("failed to query db",
			"error", err,
			"query_cmd", sql,
			"query_args", args,
		)
		return nil, err
	}
	return rows, nil
}

// QueryRow submits a new read query for a single row to PostgreSQL.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a single statement.
func (c *Client) Exec(ctx context.Context, sql string, args ...interface{}) (storage.CommandTag, error) {
	return c.pool.Exec(ctx, sql, args...)
}

// WithTx runs fn in a transaction. The transaction is committed if fn
// succeeds and rolled back otherwise.
func (c *Client) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(tx storage.Tx) error) (err error) {
	done := c.observe("tx")
	defer func() { done(err) }()

	err = pgx.BeginTxFunc(ctx, c.pool, opts, fn)
	if err != nil {
		c.logger.Debug("tx rolled back", "err", err)
	}
	return err
}

// Returns all tables that are not internal to Postgres. Table names are fully-qualified,
// i.e. of the form "<schema>.<table>".
func (c *Client) listTables(ctx context.Context) ([]string, error) {
	rows, err := c.Query(ctx, `
		SELECT schemaname, tablename
		FROM pg_tables
		WHERE schemaname != 'information_schema' AND schemaname NOT LIKE 'pg_%'
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := []string{}
	defer rows.Close() // Ensure rows is closed even if we return early.
	for rows.Next() {
		var schema, table string
		if err = rows.Scan(&schema, &table); err != nil {
			return nil, err
		}
		tables = append(tables, fmt.Sprintf("%s.%s", schema, table))
	}
	return tables, rows.Err()
}

// Wipe removes all tables from the database, including the migrations
// bookkeeping table.
func (c *Client) Wipe(ctx context.Context) error {
	tables, err := c.listTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		c.logger.Info("dropping table", "table", table)
		if _, err = c.pool.Exec(ctx, fmt.Sprintf("DROP TABLE %s CASCADE;", table)); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the storage.TargetStorage interface for Client.
func (c *Client) Close() {
	c.pool.Close()
}

// Name implements the storage.TargetStorage interface for Client.
func (c *Client) Name() string {
	return moduleName
}
