// Package storage defines storage interfaces.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// QueryResults represents the results from a read query.
type QueryResults = pgx.Rows

// QueryResult represents the result from a read query.
type QueryResult = pgx.Row

// Tx represents a database transaction.
type Tx = pgx.Tx

// CommandTag is the result of an Exec.
type CommandTag = pgconn.CommandTag

// QueuedQuery is a single query in a QueryBatch.
type QueuedQuery struct {
	Cmd  string
	Args []interface{}
}

func (q QueuedQuery) String() string {
	return fmt.Sprintf("%s %v", q.Cmd, q.Args)
}

// QueryBatch represents a batch of queries to be executed atomically.
// Unlike pgx.Batch, it keeps the queued queries around so that failures can
// be reported per query.
type QueryBatch struct {
	items []*QueuedQuery
}

// Queue adds a query to the batch.
func (b *QueryBatch) Queue(cmd string, args ...interface{}) {
	b.items = append(b.items, &QueuedQuery{
		Cmd:  cmd,
		Args: args,
	})
}

// Len returns the number of queries in the batch.
func (b *QueryBatch) Len() int {
	return len(b.items)
}

// AsPgxBatch converts a QueryBatch to a pgx.Batch.
func (b *QueryBatch) AsPgxBatch() pgx.Batch {
	pgxBatch := pgx.Batch{}
	for _, q := range b.items {
		pgxBatch.Queue(q.Cmd, q.Args...)
	}
	return pgxBatch
}

// Queries returns the queries in the batch. Each item of the returned slice
// is composed of the SQL command and its arguments.
func (b *QueryBatch) Queries() []*QueuedQuery {
	return b.items
}

// TargetStorage defines an interface for reading and writing
// ledger data.
type TargetStorage interface {
	// SendBatch sends a batch of queries to be applied to target storage.
	SendBatch(ctx context.Context, batch *QueryBatch) error

	// Query submits a query to fetch data from target storage.
	Query(ctx context.Context, sql string, args ...interface{}) (QueryResults, error)

	// QueryRow submits a query to fetch a single row of data from target storage.
	QueryRow(ctx context.Context, sql string, args ...interface{}) QueryResult

	// Exec executes a single statement outside of a batch.
	Exec(ctx context.Context, sql string, args ...interface{}) (CommandTag, error)

	// WithTx runs fn inside a transaction that is committed if fn returns
	// nil and rolled back otherwise.
	WithTx(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error

	// Wipe removes all contents of the database.
	Wipe(ctx context.Context) error

	// Close shuts down the storage client.
	Close()

	// Name returns the name of the target storage.
	Name() string
}
