package journal

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/ledger/memory"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/vault"
)

var (
	token = ethCommon.HexToAddress("0xbb9bfab8fED247886061Adb5236b898C74D49706")
	owner = ethCommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	userA = ethCommon.HexToAddress("0x0000000000000000000000000000000000000a11")
	userB = ethCommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, log.NewDefaultLogger("journal-test"))
	require.NoError(t, err)
	return j
}

// populate runs a deposit and a withdrawal through a vault journaling
// into j.
func populate(t *testing.T, j *Journal, l *memory.Ledger) *vault.Vault {
	t.Helper()
	ctx := context.Background()
	v, err := vault.New(vault.Options{Owner: owner, Ledger: l, Sinks: []vault.EventSink{j}})
	require.NoError(t, err)

	require.NoError(t, v.SetToken(ctx, owner, token))
	require.NoError(t, l.Mint(ctx, token, userA, big.NewInt(1_000_000)))
	require.NoError(t, l.Approve(ctx, token, userA, v.Address(), big.NewInt(1_000_000)))
	require.NoError(t, v.Deposit(ctx, userA, big.NewInt(500_000)))
	require.NoError(t, v.SetWithdrawEnable(ctx, owner, true))
	require.NoError(t, v.SetMaxWithdrawAmount(ctx, owner, big.NewInt(1_000_000)))
	require.NoError(t, v.GrantRole(ctx, owner, vault.WithdrawerRole, userB))
	require.NoError(t, v.Withdraw(ctx, userB, userB, big.NewInt(300_000)))
	return v
}

func TestRecordAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j := openTestJournal(t, path)
	populate(t, j, memory.New())
	require.NoError(t, j.Close())

	j = openTestJournal(t, path)
	defer j.Close()
	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 6)

	kinds := make([]vault.EventKind, 0, len(events))
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Sequence)
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []vault.EventKind{
		vault.EventTokenChanged,
		vault.EventDeposited,
		vault.EventWithdrawEnableChanged,
		vault.EventMaxWithdrawAmountChanged,
		vault.EventRoleGranted,
		vault.EventWithdrawn,
	}, kinds)
}

func TestRoundTripPreservesFields(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal"))
	defer j.Close()

	sink := &capture{}
	l := memory.New()
	v, err := vault.New(vault.Options{Owner: owner, Ledger: l, Sinks: []vault.EventSink{j, sink}})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, v.SetToken(ctx, owner, token))
	require.NoError(t, v.SetWithdrawEnable(ctx, owner, true))
	require.NoError(t, v.GrantRole(ctx, owner, vault.WithdrawerRole, userB))
	require.NoError(t, v.SetMaxWithdrawAmount(ctx, owner, big.NewInt(42)))

	loaded, err := j.Load()
	require.NoError(t, err)
	require.Len(t, loaded, len(sink.events))
	for i, ev := range sink.events {
		got := loaded[i]
		require.Equal(t, ev.ID, got.ID)
		require.True(t, ev.Timestamp.Equal(got.Timestamp))
		require.Equal(t, ev.Kind, got.Kind)
		require.Equal(t, ev.Vault, got.Vault)
		require.Equal(t, ev.Caller, got.Caller)
		require.Equal(t, ev.Account, got.Account)
		require.Equal(t, ev.Token, got.Token)
		require.Equal(t, ev.Role, got.Role)
		require.Equal(t, ev.Enabled, got.Enabled)
		if ev.Amount == nil {
			require.Nil(t, got.Amount)
		} else {
			require.Equal(t, ev.Amount.String(), got.Amount.String())
		}
	}
}

func TestRestoreFromJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	l := memory.New()
	j := openTestJournal(t, path)
	populate(t, j, l)
	require.NoError(t, j.Close())

	j = openTestJournal(t, path)
	defer j.Close()
	events, err := j.Load()
	require.NoError(t, err)

	v, err := vault.New(vault.Options{Owner: owner, Ledger: l})
	require.NoError(t, err)
	require.NoError(t, v.Restore(events))

	status, err := v.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, token, status.Token)
	require.True(t, status.WithdrawEnabled)
	require.Equal(t, "1000000", status.MaxWithdrawAmount.String())
	require.Equal(t, "200000", status.CustodiedBalance.String())
	require.True(t, v.HasRole(vault.WithdrawerRole, userB))
}

func TestList(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal"))
	defer j.Close()
	populate(t, j, memory.New())

	page, err := j.List(2, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, uint64(3), page[0].Sequence)
	require.Equal(t, uint64(5), page[2].Sequence)

	page, err = j.List(4, 100)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, vault.EventWithdrawn, page[1].Kind)

	page, err = j.List(100, 10)
	require.NoError(t, err)
	require.Empty(t, page)

	ev, err := j.Get(2)
	require.NoError(t, err)
	require.Equal(t, vault.EventDeposited, ev.Kind)
	require.Equal(t, "500000", ev.Amount.String())
}

type capture struct {
	events []*vault.Event
}

func (c *capture) Name() string { return "capture" }

func (c *capture) Record(_ context.Context, ev *vault.Event) error {
	c.events = append(c.events, ev)
	return nil
}
