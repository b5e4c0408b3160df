package vault

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oasisprotocol/custody/common"
)

// Role is a 32-byte access control role identifier.
type Role [32]byte

const (
	defaultAdminRoleName = "DEFAULT_ADMIN_ROLE"
	withdrawerRoleName   = "WITHDRAWER_ROLE"
)

var (
	// DefaultAdminRole administers the vault. It is granted to the owner on
	// construction.
	DefaultAdminRole = Role{}

	// WithdrawerRole is required to withdraw from the vault.
	WithdrawerRole = RoleFromName(withdrawerRoleName)

	knownRoles = map[Role]string{
		DefaultAdminRole: defaultAdminRoleName,
		WithdrawerRole:   withdrawerRoleName,
	}
)

// RoleFromName derives the role identifier as keccak256(name).
func RoleFromName(name string) Role {
	var r Role
	copy(r[:], common.Keccak256([]byte(name)))
	return r
}

// ParseRole parses a role given either as a 0x-prefixed 32-byte hex
// identifier or as a role name. DEFAULT_ADMIN_ROLE maps to the zero role.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return Role{}, fmt.Errorf("empty role")
	}
	if s == defaultAdminRoleName {
		return DefaultAdminRole, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return RoleFromName(s), nil
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return Role{}, fmt.Errorf("malformed role %q: %w", s, err)
	}
	if len(raw) != len(Role{}) {
		return Role{}, fmt.Errorf("malformed role %q: expected 32 bytes, got %d", s, len(raw))
	}
	var r Role
	copy(r[:], raw)
	return r, nil
}

// String returns the 0x-prefixed hex identifier.
func (r Role) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

// Name returns the well-known name of the role, if any.
func (r Role) Name() (string, bool) {
	name, ok := knownRoles[r]
	return name, ok
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
