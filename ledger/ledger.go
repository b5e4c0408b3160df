// Package ledger defines the fungible-asset ledger a vault keeps its
// custodied balance in.
//
// Semantics follow the ERC-20 token standard as implemented by
// OpenZeppelin: balances and allowances per token, allowance-gated
// transfers, and revert reasons callers can match on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when the sender's balance is lower
	// than the transferred amount.
	ErrInsufficientBalance = errors.New("ERC20: transfer amount exceeds balance")
	// ErrInsufficientAllowance is returned when a spender moves more than the
	// owner approved.
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	// ErrTransferFromZero is returned for transfers out of the zero address.
	ErrTransferFromZero = errors.New("ERC20: transfer from the zero address")
	// ErrTransferToZero is returned for transfers into the zero address.
	ErrTransferToZero = errors.New("ERC20: transfer to the zero address")
	// ErrApproveZero is returned when either party of an approval is the
	// zero address.
	ErrApproveZero = errors.New("ERC20: approve to or from the zero address")
	// ErrMintToZero is returned when minting into the zero address.
	ErrMintToZero = errors.New("ERC20: mint to the zero address")
	// ErrNegativeAmount is returned for amounts below zero.
	ErrNegativeAmount = errors.New("ledger: negative amount")
	// ErrAmountOverflow is returned for amounts, and balances resulting from
	// a credit, above MaxUint256.
	ErrAmountOverflow = errors.New("ledger: amount exceeds uint256")
)

// MaxUint256 is the largest representable token amount. An allowance of
// MaxUint256 is treated as infinite and is never decreased.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Ledger is an asset ledger holding balances of any number of tokens.
// Implementations must apply every mutating call atomically: either the
// whole transfer happens or nothing does.
type Ledger interface {
	// BalanceOf returns the balance of `account` in `token`.
	BalanceOf(ctx context.Context, token, account ethCommon.Address) (*big.Int, error)

	// Allowance returns how much `spender` may move out of `owner`'s balance.
	Allowance(ctx context.Context, token, owner, spender ethCommon.Address) (*big.Int, error)

	// Approve sets the allowance of `spender` over `owner`'s balance.
	Approve(ctx context.Context, token, owner, spender ethCommon.Address, amount *big.Int) error

	// Transfer moves `amount` from `from` to `to`.
	Transfer(ctx context.Context, token, from, to ethCommon.Address, amount *big.Int) error

	// TransferFrom moves `amount` from `from` to `to` on behalf of
	// `spender`, consuming the allowance `from` granted to `spender`.
	TransferFrom(ctx context.Context, token, spender, from, to ethCommon.Address, amount *big.Int) error

	// Mint creates `amount` new tokens in `to`'s balance.
	Mint(ctx context.Context, token, to ethCommon.Address, amount *big.Int) error

	// ApplyGenesis mints the allocations unless a genesis was already
	// applied to this ledger. All allocations are minted or none is. It
	// reports whether the allocations were minted by this call.
	ApplyGenesis(ctx context.Context, allocations []Allocation) (bool, error)

	// Name returns the name of the ledger backend.
	Name() string

	// Close releases the resources held by the ledger.
	Close() error
}

// Allocation is a balance credited by the genesis.
type Allocation struct {
	Token   ethCommon.Address
	Account ethCommon.Address
	Amount  *big.Int
}

func checkAmount(amount *big.Int) error {
	switch {
	case amount == nil || amount.Sign() < 0:
		return ErrNegativeAmount
	case amount.Cmp(MaxUint256) > 0:
		return ErrAmountOverflow
	}
	return nil
}

// CheckTransfer validates the arguments of a transfer.
func CheckTransfer(from, to ethCommon.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	switch {
	case from == (ethCommon.Address{}):
		return ErrTransferFromZero
	case to == (ethCommon.Address{}):
		return ErrTransferToZero
	}
	return nil
}

// CheckApprove validates the arguments of an approval.
func CheckApprove(owner, spender ethCommon.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	switch {
	case owner == (ethCommon.Address{}) || spender == (ethCommon.Address{}):
		return ErrApproveZero
	}
	return nil
}

// CheckMint validates the arguments of a mint.
func CheckMint(to ethCommon.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (ethCommon.Address{}) {
		return ErrMintToZero
	}
	return nil
}

// CheckGenesis validates every allocation of a genesis.
func CheckGenesis(allocations []Allocation) error {
	for i, a := range allocations {
		if err := CheckMint(a.Account, a.Amount); err != nil {
			return fmt.Errorf("allocation %d: %w", i, err)
		}
	}
	return nil
}

// Credit returns balance + amount, or ErrAmountOverflow.
func Credit(balance, amount *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(balance, amount)
	if sum.Cmp(MaxUint256) > 0 {
		return nil, ErrAmountOverflow
	}
	return sum, nil
}

// SpendAllowance returns the allowance left after `spender` moves `amount`,
// or ErrInsufficientAllowance. Infinite allowances are returned unchanged.
func SpendAllowance(current, amount *big.Int) (*big.Int, error) {
	if current.Cmp(MaxUint256) == 0 {
		return current, nil
	}
	if current.Cmp(amount) < 0 {
		return nil, ErrInsufficientAllowance
	}
	return new(big.Int).Sub(current, amount), nil
}
