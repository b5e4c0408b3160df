// Package evmabi renders vault events as EVM logs so they can be consumed
// with standard EVM tooling.
package evmabi

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/oasisprotocol/custody/vault"
)

func MustUnmarshalABI(artifactJSON []byte) *abi.ABI {
	var artifact struct {
		ABI *abi.ABI
	}
	if err := json.Unmarshal(artifactJSON, &artifact); err != nil {
		panic(err)
	}
	return artifact.ABI
}

//go:embed contracts/artifacts/ERC20.json
var artifactERC20JSON []byte
var ERC20 = MustUnmarshalABI(artifactERC20JSON)

//go:embed contracts/artifacts/CustodyVault.json
var artifactCustodyVaultJSON []byte
var CustodyVault = MustUnmarshalABI(artifactCustodyVaultJSON)

// Log is an EVM log entry.
type Log struct {
	Address ethCommon.Address `json:"address"`
	Topics  []ethCommon.Hash  `json:"topics"`
	Data    hexutil.Bytes     `json:"data"`
}

var eventNames = map[vault.EventKind]string{
	vault.EventDeposited:                "Deposit",
	vault.EventWithdrawn:                "Withdraw",
	vault.EventTokenChanged:             "TokenChanged",
	vault.EventWithdrawEnableChanged:    "WithdrawEnableChanged",
	vault.EventMaxWithdrawAmountChanged: "MaxWithdrawAmountChanged",
	vault.EventRoleGranted:              "RoleGranted",
}

func addressTopic(a ethCommon.Address) ethCommon.Hash {
	return ethCommon.BytesToHash(a.Bytes())
}

func amountOf(ev *vault.Event) (*big.Int, error) {
	if ev.Amount == nil {
		return nil, fmt.Errorf("%s event %d has no amount", ev.Kind, ev.Sequence)
	}
	return ev.Amount.Ptr(), nil
}

// EncodeEvent returns the log the vault contract would emit for ev.
func EncodeEvent(ev *vault.Event) (*Log, error) {
	name, ok := eventNames[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	abiEvent := CustodyVault.Events[name]

	var indexed []ethCommon.Hash
	var data []interface{}
	switch ev.Kind {
	case vault.EventDeposited:
		amount, err := amountOf(ev)
		if err != nil {
			return nil, err
		}
		indexed = []ethCommon.Hash{addressTopic(ev.From), addressTopic(ev.Token)}
		data = []interface{}{amount}
	case vault.EventWithdrawn:
		amount, err := amountOf(ev)
		if err != nil {
			return nil, err
		}
		indexed = []ethCommon.Hash{addressTopic(ev.Caller), addressTopic(ev.To)}
		data = []interface{}{ev.Token, amount}
	case vault.EventTokenChanged:
		indexed = []ethCommon.Hash{addressTopic(ev.Caller), addressTopic(ev.Token)}
	case vault.EventWithdrawEnableChanged:
		if ev.Enabled == nil {
			return nil, fmt.Errorf("%s event %d has no flag", ev.Kind, ev.Sequence)
		}
		indexed = []ethCommon.Hash{addressTopic(ev.Caller)}
		data = []interface{}{*ev.Enabled}
	case vault.EventMaxWithdrawAmountChanged:
		amount, err := amountOf(ev)
		if err != nil {
			return nil, err
		}
		indexed = []ethCommon.Hash{addressTopic(ev.Caller)}
		data = []interface{}{amount}
	case vault.EventRoleGranted:
		indexed = []ethCommon.Hash{ethCommon.Hash(ev.Role), addressTopic(ev.Account), addressTopic(ev.Caller)}
	}

	packed, err := abiEvent.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("pack %s event %d: %w", name, ev.Sequence, err)
	}
	return &Log{
		Address: ev.Vault,
		Topics:  append([]ethCommon.Hash{abiEvent.ID}, indexed...),
		Data:    packed,
	}, nil
}

// TransferLog returns the ERC-20 Transfer log the token emits for a deposit
// or withdrawal, or nil for other events.
func TransferLog(ev *vault.Event) (*Log, error) {
	var from, to ethCommon.Address
	switch ev.Kind {
	case vault.EventDeposited:
		from, to = ev.From, ev.Vault
	case vault.EventWithdrawn:
		from, to = ev.Vault, ev.To
	default:
		return nil, nil
	}
	amount, err := amountOf(ev)
	if err != nil {
		return nil, err
	}
	transfer := ERC20.Events["Transfer"]
	packed, err := transfer.Inputs.NonIndexed().Pack(amount)
	if err != nil {
		return nil, fmt.Errorf("pack Transfer: %w", err)
	}
	return &Log{
		Address: ev.Token,
		Topics:  []ethCommon.Hash{transfer.ID, addressTopic(from), addressTopic(to)},
		Data:    packed,
	}, nil
}
