package vault

import (
	"context"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/oasisprotocol/custody/common"
)

// EventKind identifies what a vault event records.
type EventKind string

const (
	EventDeposited                EventKind = "Deposited"
	EventWithdrawn                EventKind = "Withdrawn"
	EventTokenChanged             EventKind = "TokenChanged"
	EventWithdrawEnableChanged    EventKind = "WithdrawEnableChanged"
	EventMaxWithdrawAmountChanged EventKind = "MaxWithdrawAmountChanged"
	EventRoleGranted              EventKind = "RoleGranted"
)

// Event is a vault state change. Which fields are set depends on Kind:
//
//	Deposited:                From, Token, Amount
//	Withdrawn:                Caller, To, Token, Amount
//	TokenChanged:             Caller, Token
//	WithdrawEnableChanged:    Caller, Enabled
//	MaxWithdrawAmountChanged: Caller, Amount
//	RoleGranted:              Caller, Account, Role
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      EventKind         `json:"kind"`
	Vault     ethCommon.Address `json:"vault"`

	Caller  ethCommon.Address `json:"caller"`
	From    ethCommon.Address `json:"from"`
	To      ethCommon.Address `json:"to"`
	Account ethCommon.Address `json:"account"`
	Token   ethCommon.Address `json:"token"`
	Role    Role              `json:"role"`
	Amount  *common.BigInt    `json:"amount,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
}

// IsTransfer reports whether the event moved funds.
func (e *Event) IsTransfer() bool {
	return e.Kind == EventDeposited || e.Kind == EventWithdrawn
}

// EventSink receives every event the vault emits, in sequence order.
type EventSink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Record persists or forwards a single event.
	Record(ctx context.Context, ev *Event) error
}
