package common

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Arbitrary-precision integer. Wrapper around big.Int to allow for
// custom JSON marshaling and for storage in NUMERIC columns.
type BigInt struct {
	big.Int
}

func NewBigInt(v int64) BigInt {
	return BigInt{*big.NewInt(v)}
}

// BigIntFromInt copies v into a new BigInt. A nil v yields zero.
func BigIntFromInt(v *big.Int) BigInt {
	var b BigInt
	if v != nil {
		b.Int.Set(v)
	}
	return b
}

// ParseBigInt parses a base-10 integer.
func ParseBigInt(s string) (BigInt, error) {
	var b BigInt
	if _, ok := b.Int.SetString(strings.TrimSpace(s), 10); !ok {
		return BigInt{}, fmt.Errorf("invalid integer '%s'", s)
	}
	return b, nil
}

// Ptr returns a fresh *big.Int holding the same value.
func (b BigInt) Ptr() *big.Int {
	return new(big.Int).Set(&b.Int)
}

func (b BigInt) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *BigInt) UnmarshalText(text []byte) error {
	return b.Int.UnmarshalText(text)
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b *BigInt) UnmarshalJSON(text []byte) error {
	v := strings.Trim(string(text), "\"")
	return b.Int.UnmarshalJSON([]byte(v))
}

// ScanNumeric implements pgtype.NumericScanner.
func (b *BigInt) ScanNumeric(n pgtype.Numeric) error {
	if !n.Valid {
		return errors.New("NULL values can't be decoded. Scan into a **BigInt to handle NULLs")
	}
	v, err := NumericToBigInt(n)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// NumericValue implements pgtype.NumericValuer.
func (b BigInt) NumericValue() (pgtype.Numeric, error) {
	return pgtype.Numeric{Int: b.Ptr(), Exp: 0, Valid: true}, nil
}

// NumericToBigInt converts a pgtype.Numeric to a BigInt. Fails if the
// numeric has a fractional part.
func NumericToBigInt(n pgtype.Numeric) (BigInt, error) {
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return BigInt{}, fmt.Errorf("cannot convert %v to integer", n)
	}
	if n.Int == nil {
		return BigInt{}, nil
	}
	bi := new(big.Int).Set(n.Int)
	big10 := big.NewInt(10)
	switch {
	case n.Exp > 0:
		mul := new(big.Int).Exp(big10, big.NewInt(int64(n.Exp)), nil)
		bi.Mul(bi, mul)
	case n.Exp < 0:
		div := new(big.Int).Exp(big10, big.NewInt(int64(-n.Exp)), nil)
		remainder := new(big.Int)
		bi.DivMod(bi, div, remainder)
		if remainder.Sign() != 0 {
			return BigInt{}, fmt.Errorf("cannot convert %v to integer", n)
		}
	}
	return BigInt{Int: *bi}, nil
}

// Key used to set values in a web request context. API middleware uses this
// to set values, handlers use this to retrieve values.
type ContextKey string

const (
	// RequestIDContextKey is used to set a request id for tracing
	// in a request context.
	RequestIDContextKey ContextKey = "request_id"
	// CallerContextKey is used to set the address asserted by the
	// caller of a request.
	CallerContextKey ContextKey = "caller"
)
