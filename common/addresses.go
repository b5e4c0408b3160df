package common

import (
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroAddress is the all-zero account. Ledgers refuse to move funds to or
// from it.
var ZeroAddress = ethCommon.Address{}

// ParseAddress parses a 0x-prefixed hex account address.
func ParseAddress(s string) (ethCommon.Address, error) {
	if !ethCommon.IsHexAddress(s) {
		return ethCommon.Address{}, fmt.Errorf("invalid address '%s'", s)
	}
	return ethCommon.HexToAddress(s), nil
}

// ContractAddress returns the address a contract deployed by `deployer` with
// the given account nonce ends up at. Used to give a vault a stable custody
// address that is derived from its owner.
func ContractAddress(deployer ethCommon.Address, nonce uint64) ethCommon.Address {
	return crypto.CreateAddress(deployer, nonce)
}

func Keccak256(data []byte) []byte {
	return crypto.Keccak256(data)
}
