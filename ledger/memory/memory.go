// Package memory implements an in-memory asset ledger.
package memory

import (
	"context"
	"math/big"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/oasisprotocol/custody/ledger"
)

const moduleName = "inmemory"

type allowanceKey struct {
	owner   ethCommon.Address
	spender ethCommon.Address
}

type tokenState struct {
	balances   map[ethCommon.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

// Ledger is a mutex-guarded, in-memory ledger. The zero value is not usable;
// use New.
type Ledger struct {
	mu      sync.Mutex
	tokens  map[ethCommon.Address]*tokenState
	genesis bool
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty in-memory ledger.
func New() *Ledger {
	return &Ledger{tokens: make(map[ethCommon.Address]*tokenState)}
}

func (l *Ledger) token(addr ethCommon.Address) *tokenState {
	ts, ok := l.tokens[addr]
	if !ok {
		ts = &tokenState{
			balances:   make(map[ethCommon.Address]*big.Int),
			allowances: make(map[allowanceKey]*big.Int),
		}
		l.tokens[addr] = ts
	}
	return ts
}

func (ts *tokenState) balance(account ethCommon.Address) *big.Int {
	if b, ok := ts.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (ts *tokenState) allowance(owner, spender ethCommon.Address) *big.Int {
	if a, ok := ts.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}

// Caller must hold l.mu and must have validated the arguments.
func (ts *tokenState) transfer(from, to ethCommon.Address, amount *big.Int) error {
	fromBalance := ts.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return ledger.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := ledger.Credit(ts.balance(to), amount)
	if err != nil {
		return err
	}
	ts.balances[from] = new(big.Int).Sub(fromBalance, amount)
	ts.balances[to] = toBalance
	return nil
}

// BalanceOf implements ledger.Ledger.
func (l *Ledger) BalanceOf(_ context.Context, token, account ethCommon.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.token(token).balance(account)), nil
}

// Allowance implements ledger.Ledger.
func (l *Ledger) Allowance(_ context.Context, token, owner, spender ethCommon.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.token(token).allowance(owner, spender)), nil
}

// Approve implements ledger.Ledger.
func (l *Ledger) Approve(_ context.Context, token, owner, spender ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckApprove(owner, spender, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token(token).allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
	return nil
}

// Transfer implements ledger.Ledger.
func (l *Ledger) Transfer(_ context.Context, token, from, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token(token).transfer(from, to, amount)
}

// TransferFrom implements ledger.Ledger.
func (l *Ledger) TransferFrom(_ context.Context, token, spender, from, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckTransfer(from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.token(token)
	remaining, err := ledger.SpendAllowance(ts.allowance(from, spender), amount)
	if err != nil {
		return err
	}
	if err := ts.transfer(from, to, amount); err != nil {
		return err
	}
	ts.allowances[allowanceKey{from, spender}] = remaining
	return nil
}

// Mint implements ledger.Ledger.
func (l *Ledger) Mint(_ context.Context, token, to ethCommon.Address, amount *big.Int) error {
	if err := ledger.CheckMint(to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mint(token, to, amount)
}

// Caller must hold l.mu.
func (l *Ledger) mint(token, to ethCommon.Address, amount *big.Int) error {
	ts := l.token(token)
	balance, err := ledger.Credit(ts.balance(to), amount)
	if err != nil {
		return err
	}
	ts.balances[to] = balance
	return nil
}

// ApplyGenesis implements ledger.Ledger. The marker lives in memory, so a
// new ledger always accepts a genesis.
func (l *Ledger) ApplyGenesis(_ context.Context, allocations []ledger.Allocation) (bool, error) {
	if err := ledger.CheckGenesis(allocations); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.genesis {
		return false, nil
	}

	// Credit a scratch copy of the touched balances first, so that an
	// overflowing allocation leaves the ledger untouched.
	credited := make(map[*tokenState]map[ethCommon.Address]*big.Int)
	for _, a := range allocations {
		ts := l.token(a.Token)
		if credited[ts] == nil {
			credited[ts] = make(map[ethCommon.Address]*big.Int)
		}
		current, ok := credited[ts][a.Account]
		if !ok {
			current = ts.balance(a.Account)
		}
		balance, err := ledger.Credit(current, a.Amount)
		if err != nil {
			return false, err
		}
		credited[ts][a.Account] = balance
	}
	for ts, balances := range credited {
		for account, balance := range balances {
			ts.balances[account] = balance
		}
	}
	l.genesis = true
	return true, nil
}

// Name implements ledger.Ledger.
func (l *Ledger) Name() string {
	return moduleName
}

// Close implements ledger.Ledger.
func (l *Ledger) Close() error {
	return nil
}
