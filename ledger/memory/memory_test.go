package memory

import (
	"context"
	"math/big"
	"sync"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/ledger"
)

var (
	token = ethCommon.HexToAddress("0xbb9bfab8fED247886061Adb5236b898C74D49706")
	alice = ethCommon.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = ethCommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = ethCommon.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

func requireBalance(t *testing.T, l *Ledger, account ethCommon.Address, expected int64) {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(expected).String(), b.String())
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(1000)))

	require.NoError(t, l.Transfer(ctx, token, alice, bob, big.NewInt(400)))
	requireBalance(t, l, alice, 600)
	requireBalance(t, l, bob, 400)

	err := l.Transfer(ctx, token, alice, bob, big.NewInt(601))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, "ERC20: transfer amount exceeds balance", err.Error())
	requireBalance(t, l, alice, 600)
	requireBalance(t, l, bob, 400)
}

func TestTransferToSelf(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(10)))
	require.NoError(t, l.Transfer(ctx, token, alice, alice, big.NewInt(10)))
	requireBalance(t, l, alice, 10)
}

func TestTransferArguments(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.ErrorIs(t, l.Transfer(ctx, token, ethCommon.Address{}, bob, big.NewInt(1)), ledger.ErrTransferFromZero)
	require.ErrorIs(t, l.Transfer(ctx, token, alice, ethCommon.Address{}, big.NewInt(1)), ledger.ErrTransferToZero)
	require.ErrorIs(t, l.Transfer(ctx, token, alice, bob, big.NewInt(-1)), ledger.ErrNegativeAmount)
	require.ErrorIs(t, l.Mint(ctx, token, ethCommon.Address{}, big.NewInt(1)), ledger.ErrMintToZero)
	require.ErrorIs(t, l.Approve(ctx, token, alice, ethCommon.Address{}, big.NewInt(1)), ledger.ErrApproveZero)
}

func TestTransferFrom(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(1000)))

	err := l.TransferFrom(ctx, token, carol, alice, bob, big.NewInt(1))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	require.NoError(t, l.Approve(ctx, token, alice, carol, big.NewInt(500)))
	require.NoError(t, l.TransferFrom(ctx, token, carol, alice, bob, big.NewInt(300)))
	requireBalance(t, l, alice, 700)
	requireBalance(t, l, bob, 300)

	allowance, err := l.Allowance(ctx, token, alice, carol)
	require.NoError(t, err)
	require.Equal(t, "200", allowance.String())

	// Allowance is checked before the balance, like OpenZeppelin's ERC20.
	err = l.TransferFrom(ctx, token, carol, alice, bob, big.NewInt(201))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
}

func TestTransferFromFailureKeepsAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(100)))
	require.NoError(t, l.Approve(ctx, token, alice, carol, big.NewInt(500)))

	err := l.TransferFrom(ctx, token, carol, alice, bob, big.NewInt(200))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	allowance, err := l.Allowance(ctx, token, alice, carol)
	require.NoError(t, err)
	require.Equal(t, "500", allowance.String())
}

func TestInfiniteAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(100)))
	require.NoError(t, l.Approve(ctx, token, alice, carol, ledger.MaxUint256))
	require.NoError(t, l.TransferFrom(ctx, token, carol, alice, bob, big.NewInt(100)))

	allowance, err := l.Allowance(ctx, token, alice, carol)
	require.NoError(t, err)
	require.Zero(t, ledger.MaxUint256.Cmp(allowance))
}

func TestTokensAreIsolated(t *testing.T) {
	ctx := context.Background()
	l := New()
	other := ethCommon.HexToAddress("0xD4885A25901767d10dDb7a83195aa2afA6252Cf7")
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(5)))

	b, err := l.BalanceOf(ctx, other, alice)
	require.NoError(t, err)
	require.Zero(t, b.Sign())
}

func TestConcurrentTransfersConserveSupply(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.Mint(ctx, token, alice, big.NewInt(1000)))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Transfer(ctx, token, alice, bob, big.NewInt(7))
		}()
		go func() {
			defer wg.Done()
			_ = l.Transfer(ctx, token, bob, alice, big.NewInt(3))
		}()
	}
	wg.Wait()

	a, err := l.BalanceOf(ctx, token, alice)
	require.NoError(t, err)
	b, err := l.BalanceOf(ctx, token, bob)
	require.NoError(t, err)
	require.Equal(t, "1000", new(big.Int).Add(a, b).String())
	require.True(t, a.Sign() >= 0 && b.Sign() >= 0)
}

func TestAmountOverflow(t *testing.T) {
	ctx := context.Background()
	l := New()
	tooLarge := new(big.Int).Add(ledger.MaxUint256, big.NewInt(1))

	require.ErrorIs(t, l.Mint(ctx, token, alice, tooLarge), ledger.ErrAmountOverflow)
	require.ErrorIs(t, l.Transfer(ctx, token, alice, bob, tooLarge), ledger.ErrAmountOverflow)
	require.ErrorIs(t, l.Approve(ctx, token, alice, bob, tooLarge), ledger.ErrAmountOverflow)
	requireBalance(t, l, alice, 0)

	require.NoError(t, l.Mint(ctx, token, alice, ledger.MaxUint256))
	require.ErrorIs(t, l.Mint(ctx, token, alice, big.NewInt(1)), ledger.ErrAmountOverflow)

	// Two full balances cannot be merged into one.
	require.NoError(t, l.Mint(ctx, token, bob, ledger.MaxUint256))
	require.ErrorIs(t, l.Transfer(ctx, token, alice, bob, big.NewInt(1)), ledger.ErrAmountOverflow)
	balance, err := l.BalanceOf(ctx, token, alice)
	require.NoError(t, err)
	require.Equal(t, ledger.MaxUint256.String(), balance.String())
}

func TestApplyGenesisOnce(t *testing.T) {
	ctx := context.Background()
	l := New()
	allocations := []ledger.Allocation{
		{Token: token, Account: alice, Amount: big.NewInt(1000)},
		{Token: token, Account: alice, Amount: big.NewInt(500)},
		{Token: token, Account: bob, Amount: big.NewInt(7)},
	}

	applied, err := l.ApplyGenesis(ctx, allocations)
	require.NoError(t, err)
	require.True(t, applied)
	requireBalance(t, l, alice, 1500)
	requireBalance(t, l, bob, 7)

	applied, err = l.ApplyGenesis(ctx, allocations)
	require.NoError(t, err)
	require.False(t, applied)
	requireBalance(t, l, alice, 1500)
	requireBalance(t, l, bob, 7)
}

func TestApplyGenesisIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := New()

	_, err := l.ApplyGenesis(ctx, []ledger.Allocation{
		{Token: token, Account: alice, Amount: big.NewInt(1)},
		{Token: token, Account: ethCommon.Address{}, Amount: big.NewInt(1)},
	})
	require.ErrorIs(t, err, ledger.ErrMintToZero)
	requireBalance(t, l, alice, 0)

	_, err = l.ApplyGenesis(ctx, []ledger.Allocation{
		{Token: token, Account: alice, Amount: big.NewInt(1)},
		{Token: token, Account: alice, Amount: ledger.MaxUint256},
	})
	require.ErrorIs(t, err, ledger.ErrAmountOverflow)
	requireBalance(t, l, alice, 0)

	// A failed genesis does not count as applied.
	applied, err := l.ApplyGenesis(ctx, []ledger.Allocation{
		{Token: token, Account: alice, Amount: big.NewInt(3)},
	})
	require.NoError(t, err)
	require.True(t, applied)
	requireBalance(t, l, alice, 3)
}
