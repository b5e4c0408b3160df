// Package vault implements a custody vault holding one designated token on
// behalf of depositors.
//
// Withdrawals are gated by the withdrawer role, a global enable switch and a
// per-call ceiling. The vault never keeps balances of its own: the custodied
// balance is the vault address's balance in the injected ledger.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/ledger"
	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/metrics"
)

const moduleName = "vault"

// Options configures a new vault.
type Options struct {
	// Owner administers the vault and holds DefaultAdminRole.
	Owner ethCommon.Address
	// Address is the vault's custody account in the ledger. When zero, it
	// is derived from the owner as a contract creation address.
	Address ethCommon.Address
	// Ledger holds the balances.
	Ledger ledger.Ledger
	// Sinks receive every emitted event.
	Sinks []EventSink
	// Logger defaults to a default logger when nil.
	Logger *log.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Vault is a custody vault. All methods are safe for concurrent use; every
// operation runs under a single lock, so operations are totally ordered.
type Vault struct {
	mu sync.Mutex

	owner             ethCommon.Address
	address           ethCommon.Address
	token             ethCommon.Address
	withdrawEnabled   bool
	maxWithdrawAmount *big.Int
	roles             map[Role]map[ethCommon.Address]struct{}
	sequence          uint64

	ledger  ledger.Ledger
	sinks   []EventSink
	logger  *log.Logger
	metrics metrics.VaultMetrics
	now     func() time.Time
}

// Status is a point-in-time snapshot of the vault.
type Status struct {
	Address           ethCommon.Address `json:"address"`
	Owner             ethCommon.Address `json:"owner"`
	Token             ethCommon.Address `json:"token"`
	WithdrawEnabled   bool              `json:"withdraw_enabled"`
	MaxWithdrawAmount common.BigInt     `json:"max_withdraw_amount"`
	CustodiedBalance  common.BigInt     `json:"custodied_balance"`
	LastSequence      uint64            `json:"last_sequence"`
}

// New creates a vault with withdrawals disabled, a zero ceiling and no
// token bound. The owner is granted DefaultAdminRole.
func New(opts Options) (*Vault, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("vault: no ledger")
	}
	if opts.Owner == common.ZeroAddress {
		return nil, fmt.Errorf("vault: owner must not be the zero address")
	}
	address := opts.Address
	if address == common.ZeroAddress {
		address = common.ContractAddress(opts.Owner, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDefaultLogger(moduleName)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	v := &Vault{
		owner:             opts.Owner,
		address:           address,
		maxWithdrawAmount: new(big.Int),
		roles:             make(map[Role]map[ethCommon.Address]struct{}),
		ledger:            opts.Ledger,
		sinks:             append([]EventSink(nil), opts.Sinks...),
		logger:            logger.WithModule(moduleName).With("vault", address.Hex()),
		metrics:           metrics.NewDefaultVaultMetrics(moduleName),
		now:               clock,
	}
	v.addRole(DefaultAdminRole, opts.Owner)
	return v, nil
}

// AddSink registers another event sink.
func (v *Vault) AddSink(sink EventSink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sinks = append(v.sinks, sink)
}

// Address returns the vault's custody account.
func (v *Vault) Address() ethCommon.Address {
	return v.address
}

// Owner returns the vault's owner.
func (v *Vault) Owner() ethCommon.Address {
	return v.owner
}

// SetToken binds the vault to the given token, replacing any previous
// binding.
func (v *Vault) SetToken(ctx context.Context, caller, token ethCommon.Address) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("set_token", &err)

	if err = v.checkRole(DefaultAdminRole, caller); err != nil {
		return err
	}
	v.token = token
	v.emit(ctx, &Event{Kind: EventTokenChanged, Caller: caller, Token: token})
	v.updateCustodied(ctx)
	return nil
}

// TokenAddress returns the bound token, or the zero address.
func (v *Vault) TokenAddress() ethCommon.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

// SetWithdrawEnable switches withdrawals on or off.
func (v *Vault) SetWithdrawEnable(ctx context.Context, caller ethCommon.Address, enabled bool) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("set_withdraw_enable", &err)

	if err = v.checkRole(DefaultAdminRole, caller); err != nil {
		return err
	}
	v.withdrawEnabled = enabled
	v.emit(ctx, &Event{Kind: EventWithdrawEnableChanged, Caller: caller, Enabled: &enabled})
	return nil
}

// SetMaxWithdrawAmount sets the per-call withdrawal ceiling.
func (v *Vault) SetMaxWithdrawAmount(ctx context.Context, caller ethCommon.Address, amount *big.Int) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("set_max_withdraw_amount", &err)

	if err = v.checkRole(DefaultAdminRole, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return revert(ErrInvalidAmount, ReasonNegativeAmount)
	}
	if amount.Cmp(ledger.MaxUint256) > 0 {
		return revert(ErrInvalidAmount, ReasonAmountOverflow)
	}
	v.maxWithdrawAmount = new(big.Int).Set(amount)
	limit := common.BigIntFromInt(amount)
	v.emit(ctx, &Event{Kind: EventMaxWithdrawAmountChanged, Caller: caller, Amount: &limit})
	return nil
}

// GrantRole adds account to role. Granting a role the account already
// holds changes nothing and emits no event.
func (v *Vault) GrantRole(ctx context.Context, caller ethCommon.Address, role Role, account ethCommon.Address) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("grant_role", &err)

	if err = v.checkRole(DefaultAdminRole, caller); err != nil {
		return err
	}
	if v.addRole(role, account) {
		v.emit(ctx, &Event{Kind: EventRoleGranted, Caller: caller, Account: account, Role: role})
	}
	return nil
}

// HasRole reports whether account holds role.
func (v *Vault) HasRole(role Role, account ethCommon.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasRole(role, account)
}

// RoleMembers returns the holders of role, sorted by address.
func (v *Vault) RoleMembers(role Role) []ethCommon.Address {
	v.mu.Lock()
	defer v.mu.Unlock()

	members := make([]ethCommon.Address, 0, len(v.roles[role]))
	for account := range v.roles[role] {
		members = append(members, account)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Cmp(members[j]) < 0
	})
	return members
}

// Deposit moves amount of the bound token from caller into the vault. The
// caller must have approved the vault to spend at least amount.
func (v *Vault) Deposit(ctx context.Context, caller ethCommon.Address, amount *big.Int) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("deposit", &err)

	if err = v.checkTransfer(amount); err != nil {
		return err
	}
	balance, err := v.ledger.BalanceOf(ctx, v.token, caller)
	if err != nil {
		return fmt.Errorf("query depositor balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return revert(ErrInsufficientBalance, ReasonInsufficientAccountBalance)
	}
	if err = v.ledger.TransferFrom(ctx, v.token, v.address, caller, v.address, amount); err != nil {
		return fromLedger(err)
	}

	deposited := common.BigIntFromInt(amount)
	v.emit(ctx, &Event{Kind: EventDeposited, From: caller, Token: v.token, Amount: &deposited})
	v.updateCustodied(ctx)
	return nil
}

// Withdraw moves amount of the bound token from the vault to `to`. The
// caller must hold WithdrawerRole, withdrawals must be enabled and amount
// must not exceed the ceiling.
func (v *Vault) Withdraw(ctx context.Context, caller, to ethCommon.Address, amount *big.Int) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	defer v.observe("withdraw", &err)

	if !v.hasRole(WithdrawerRole, caller) {
		return revert(ErrUnauthorized, ReasonNotWithdrawer)
	}
	if !v.withdrawEnabled {
		return revert(ErrWithdrawalDisabled, ReasonWithdrawDisabled)
	}
	if amount != nil && amount.Cmp(v.maxWithdrawAmount) > 0 {
		return revert(ErrLimitExceeded, ReasonExceedMaximum)
	}
	if err = v.checkTransfer(amount); err != nil {
		return err
	}
	if err = v.ledger.Transfer(ctx, v.token, v.address, to, amount); err != nil {
		return fromLedger(err)
	}

	withdrawn := common.BigIntFromInt(amount)
	v.emit(ctx, &Event{Kind: EventWithdrawn, Caller: caller, To: to, Token: v.token, Amount: &withdrawn})
	v.updateCustodied(ctx)
	return nil
}

// BalanceOf returns account's balance of the bound token.
func (v *Vault) BalanceOf(ctx context.Context, account ethCommon.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.token == common.ZeroAddress {
		return nil, revert(ErrTokenNotSet, ReasonTokenNotSet)
	}
	return v.ledger.BalanceOf(ctx, v.token, account)
}

// CustodiedBalance returns the vault's own balance of the bound token.
func (v *Vault) CustodiedBalance(ctx context.Context) (*big.Int, error) {
	return v.BalanceOf(ctx, v.address)
}

// Status returns a snapshot of the vault. The custodied balance is zero
// while no token is bound.
func (v *Vault) Status(ctx context.Context) (*Status, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	custodied := new(big.Int)
	if v.token != common.ZeroAddress {
		var err error
		if custodied, err = v.ledger.BalanceOf(ctx, v.token, v.address); err != nil {
			return nil, fmt.Errorf("query custodied balance: %w", err)
		}
	}
	return &Status{
		Address:           v.address,
		Owner:             v.owner,
		Token:             v.token,
		WithdrawEnabled:   v.withdrawEnabled,
		MaxWithdrawAmount: common.BigIntFromInt(v.maxWithdrawAmount),
		CustodiedBalance:  common.BigIntFromInt(custodied),
		LastSequence:      v.sequence,
	}, nil
}

// Restore replays previously emitted events without emitting them again.
// Configuration and role events are applied; deposits and withdrawals are
// skipped since balances live in the ledger. Events must belong to this
// vault and be in increasing sequence order.
func (v *Vault) Restore(events []*Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ev := range events {
		if ev.Vault != v.address {
			return fmt.Errorf("event %d belongs to vault %s", ev.Sequence, ev.Vault.Hex())
		}
		if ev.Sequence <= v.sequence {
			return fmt.Errorf("event %d out of order after %d", ev.Sequence, v.sequence)
		}
		switch ev.Kind {
		case EventTokenChanged:
			v.token = ev.Token
		case EventWithdrawEnableChanged:
			if ev.Enabled == nil {
				return fmt.Errorf("event %d: missing enabled flag", ev.Sequence)
			}
			v.withdrawEnabled = *ev.Enabled
		case EventMaxWithdrawAmountChanged:
			if ev.Amount == nil {
				return fmt.Errorf("event %d: missing amount", ev.Sequence)
			}
			v.maxWithdrawAmount = ev.Amount.Ptr()
		case EventRoleGranted:
			v.addRole(ev.Role, ev.Account)
		case EventDeposited, EventWithdrawn:
		default:
			return fmt.Errorf("event %d: unknown kind %q", ev.Sequence, ev.Kind)
		}
		v.sequence = ev.Sequence
	}
	v.logger.Info("restored vault state", "events", len(events), "sequence", v.sequence)
	return nil
}

func (v *Vault) checkRole(role Role, account ethCommon.Address) error {
	if v.hasRole(role, account) {
		return nil
	}
	return revert(ErrUnauthorized, fmt.Sprintf("AccessControl: account %s is missing role %s",
		strings.ToLower(account.Hex()), role))
}

func (v *Vault) checkTransfer(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return revert(ErrInvalidAmount, ReasonNonPositiveAmount)
	}
	if v.token == common.ZeroAddress {
		return revert(ErrTokenNotSet, ReasonTokenNotSet)
	}
	return nil
}

func (v *Vault) hasRole(role Role, account ethCommon.Address) bool {
	_, ok := v.roles[role][account]
	return ok
}

// addRole reports whether the account was newly added.
func (v *Vault) addRole(role Role, account ethCommon.Address) bool {
	members, ok := v.roles[role]
	if !ok {
		members = make(map[ethCommon.Address]struct{})
		v.roles[role] = members
	}
	if _, ok := members[account]; ok {
		return false
	}
	members[account] = struct{}{}
	return true
}

// emit stamps the event and hands it to every sink. Sink failures are
// logged and counted; the state change has already happened.
func (v *Vault) emit(ctx context.Context, ev *Event) {
	v.sequence++
	ev.ID = uuid.New()
	ev.Sequence = v.sequence
	ev.Timestamp = v.now().UTC()
	ev.Vault = v.address

	v.logger.Debug("emitting event", "kind", ev.Kind, "sequence", ev.Sequence)
	for _, sink := range v.sinks {
		if err := sink.Record(ctx, ev); err != nil {
			v.metrics.SinkFailures(sink.Name()).Inc()
			v.logger.Error("failed to record event",
				"sink", sink.Name(),
				"kind", ev.Kind,
				"sequence", ev.Sequence,
				"err", err,
			)
		}
	}
}

func (v *Vault) updateCustodied(ctx context.Context) {
	if v.token == common.ZeroAddress {
		return
	}
	balance, err := v.ledger.BalanceOf(ctx, v.token, v.address)
	if err != nil {
		v.logger.Warn("failed to query custodied balance", "err", err)
		return
	}
	v.metrics.SetCustodied(v.address.Hex(), v.token.Hex(), balance)
}

func (v *Vault) observe(op string, err *error) {
	result := outcome(*err)
	v.metrics.Operations(op, result).Inc()
	if *err != nil {
		v.logger.Debug("operation rejected", "op", op, "outcome", result, "reason", Reason(*err))
	}
}
