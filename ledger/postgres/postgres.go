// Package postgres implements an asset ledger persisted in PostgreSQL.
//
// The schema lives in storage/migrations. Every mutating call runs in its
// own transaction and locks the rows it touches, in a fixed order, so that
// concurrent transfers between the same accounts serialize instead of
// deadlocking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/storage"
)

const moduleName = "postgres_ledger"

// PostgreSQL error codes the ledger reacts to.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Balances are of type ledger.uint256, whose check fails on overflow.
func creditError(err error) error {
	if hasCode(err, codeCheckViolation) {
		return ledger.ErrAmountOverflow
	}
	return fmt.Errorf("credit balance: %w", err)
}

// Ledger is a ledger.Ledger backed by PostgreSQL.
type Ledger struct {
	db     storage.TargetStorage
	logger *log.Logger
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates a ledger on top of an already migrated database.
func New(db storage.TargetStorage, logger *log.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.WithModule(moduleName),
	}
}

func bigIntArg(v *big.Int) common.BigInt {
	return common.BigIntFromInt(v)
}

// BalanceOf implements ledger.Ledger.
func (l *Ledger) BalanceOf(ctx context.Context, token, account ethCommon.Address) (*big.Int, error) {
	var balance common.BigInt
	err := l.db.QueryRow(ctx, qBalance, token.Hex(), account.Hex()).Scan(&balance)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return new(big.Int), nil
	case err != nil:
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return balance.Ptr(), nil
}

// Allowance implements ledger.Ledger.
func (l *Ledger) Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error) {
	var allowance common.BigInt
	err := l.db.QueryRow(ctx, qAllowance, token.Hex(), owner.Hex(), spender.Hex()).Scan(&allowance)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return new(big.Int), nil
	case err != nil:
		return nil, fmt.Errorf("query allowance: %w", err)
	}
	return allowance.Ptr(), nil
}

// Approve implements ledger.Ledger.
func (l *Ledger) Approve(ctx context.Context, token, owner, spender ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckApprove(owner, spender, amount); err != nil {
		return err
	}
	if _, err := l.db.Exec(ctx, qUpsertAllowance, token.Hex(), owner.Hex(), spender.Hex(), bigIntArg(amount)); err != nil {
		return fmt.Errorf("upsert allowance: %w", err)
	}
	return nil
}

// Transfer implements ledger.Ledger.
func (l *Ledger) Transfer(ctx context.Context, token, from, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	return l.db.WithTx(ctx, pgx.TxOptions{}, func(tx storage.Tx) error {
		return transfer(ctx, tx, token, from, to, amount)
	})
}

// TransferFrom implements ledger.Ledger.
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	return l.db.WithTx(ctx, pgx.TxOptions{}, func(tx storage.Tx) error {
		var current common.BigInt
		err := tx.QueryRow(ctx, qLockAllowance, token.Hex(), from.Hex(), spender.Hex()).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ledger.ErrInsufficientAllowance
		case err != nil:
			return fmt.Errorf("lock allowance: %w", err)
		}

		remaining, err := ledger.SpendAllowance(current.Ptr(), amount)
		if err != nil {
			return err
		}
		if err := transfer(ctx, tx, token, from, to, amount); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, qUpsertAllowance, token.Hex(), from.Hex(), spender.Hex(), bigIntArg(remaining)); err != nil {
			return fmt.Errorf("update allowance: %w", err)
		}
		return nil
	})
}

// Mint implements ledger.Ledger.
func (l *Ledger) Mint(ctx context.Context, token, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckMint(to, amount); err != nil {
		return err
	}
	if _, err := l.db.Exec(ctx, qCreditBalance, token.Hex(), to.Hex(), bigIntArg(amount)); err != nil {
		return creditError(err)
	}
	return nil
}

// ApplyGenesis implements ledger.Ledger. The marker row and the credits are
// sent as one batch; the marker's primary key lets only one batch commit.
func (l *Ledger) ApplyGenesis(ctx context.Context, allocations []ledger.Allocation) (bool, error) {
	if err := ledger.CheckGenesis(allocations); err != nil {
		return false, err
	}

	var applied bool
	if err := l.db.QueryRow(ctx, qGenesisApplied).Scan(&applied); err != nil {
		return false, fmt.Errorf("query genesis marker: %w", err)
	}
	if applied {
		l.logger.Info("genesis already applied")
		return false, nil
	}

	batch := &storage.QueryBatch{}
	batch.Queue(qMarkGenesis, len(allocations))
	for _, a := range allocations {
		batch.Queue(qCreditBalance, a.Token.Hex(), a.Account.Hex(), bigIntArg(a.Amount))
	}
	l.logger.Debug("sending genesis batch", "queries", batch.Len())
	switch err := l.db.SendBatch(ctx, batch); {
	case hasCode(err, codeUniqueViolation):
		l.logger.Info("genesis applied concurrently")
		return false, nil
	case err != nil:
		return false, creditError(err)
	}
	l.logger.Info("applied genesis", "allocations", len(allocations))
	return true, nil
}

// Name implements ledger.Ledger.
func (l *Ledger) Name() string {
	return moduleName
}

// Close implements ledger.Ledger. The underlying storage client is owned by
// the caller that created it and is closed here as well.
func (l *Ledger) Close() error {
	l.db.Close()
	return nil
}

func transfer(ctx context.Context, tx storage.Tx, token, from, to ethCommon.Address, amount *big.Int) error {
	balances, err := lockBalances(ctx, tx, token, from, to)
	if err != nil {
		return err
	}
	if balances[from.Hex()].Cmp(amount) < 0 {
		return ledger.ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, qDebitBalance, token.Hex(), from.Hex(), bigIntArg(amount)); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if _, err := tx.Exec(ctx, qCreditBalance, token.Hex(), to.Hex(), bigIntArg(amount)); err != nil {
		return creditError(err)
	}
	return nil
}

// lockBalances makes sure a balance row exists for each account, then locks
// all of them in account order.
func lockBalances(ctx context.Context, tx storage.Tx, token ethCommon.Address, accounts ...ethCommon.Address) (map[string]*big.Int, error) {
	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, a.Hex())
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := tx.Exec(ctx, qEnsureBalance, token.Hex(), k); err != nil {
			return nil, fmt.Errorf("ensure balance row: %w", err)
		}
	}

	rows, err := tx.Query(ctx, qLockBalances, token.Hex(), keys)
	if err != nil {
		return nil, fmt.Errorf("lock balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]*big.Int, len(keys))
	for rows.Next() {
		var account string
		var balance common.BigInt
		if err := rows.Scan(&account, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[account] = balance.Ptr()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, ok := balances[k]; !ok {
			balances[k] = new(big.Int)
		}
	}
	return balances, nil
}
