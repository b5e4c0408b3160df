package api

import (
	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/oasisprotocol/custody/common"
	"github.com/oasisprotocol/custody/evmabi"
	"github.com/oasisprotocol/custody/vault"
)

// SetTokenRequest is the body of PUT /v1/vault/token.
type SetTokenRequest struct {
	Token ethCommon.Address `json:"token"`
}

// SetWithdrawEnabledRequest is the body of PUT /v1/vault/withdraw_enabled.
type SetWithdrawEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// AmountRequest is the body of PUT /v1/vault/max_withdraw_amount and
// POST /v1/vault/deposit.
type AmountRequest struct {
	Amount *common.BigInt `json:"amount"`
}

// GrantRoleRequest is the body of POST /v1/vault/roles/{role}.
type GrantRoleRequest struct {
	Account ethCommon.Address `json:"account"`
}

// TransferRequest is the body of POST /v1/vault/withdraw and
// POST /v1/ledger/{token}/transfer.
type TransferRequest struct {
	To     ethCommon.Address `json:"to"`
	Amount *common.BigInt    `json:"amount"`
}

// ApproveRequest is the body of POST /v1/ledger/{token}/approve.
type ApproveRequest struct {
	Spender ethCommon.Address `json:"spender"`
	Amount  *common.BigInt    `json:"amount"`
}

// RoleMembers lists the holders of a role.
type RoleMembers struct {
	Role    vault.Role          `json:"role"`
	Name    string              `json:"name,omitempty"`
	Members []ethCommon.Address `json:"members"`
}

// Balance is an account's balance of a token.
type Balance struct {
	Token   ethCommon.Address `json:"token"`
	Account ethCommon.Address `json:"account"`
	Balance common.BigInt     `json:"balance"`
}

// Allowance is how much a spender may move out of an owner's balance.
type Allowance struct {
	Token     ethCommon.Address `json:"token"`
	Owner     ethCommon.Address `json:"owner"`
	Spender   ethCommon.Address `json:"spender"`
	Allowance common.BigInt     `json:"allowance"`
}

// EventWithLogs is a vault event together with its EVM log form.
type EventWithLogs struct {
	*vault.Event
	Log         *evmabi.Log `json:"log"`
	TransferLog *evmabi.Log `json:"transfer_log,omitempty"`
}

// EventList is a page of vault events.
type EventList struct {
	Events []EventWithLogs `json:"events"`
}
