package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd"
)

// ParseUnits converts a decimal string such as "1.5" into base units of a
// token with the given number of decimals ("1.5" with 18 decimals is
// 1500000000000000000). Values with more fractional digits than `decimals`
// are rejected.
func ParseUnits(s string, decimals uint8) (BigInt, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return BigInt{}, fmt.Errorf("parse units '%s': %w", s, err)
	}
	if d.Form != apd.Finite {
		return BigInt{}, fmt.Errorf("parse units '%s': not a finite number", s)
	}

	v := new(big.Int).Set(&d.Coeff)
	scale := int64(d.Exponent) + int64(decimals)
	switch {
	case scale > 0:
		v.Mul(v, pow10(scale))
	case scale < 0:
		rem := new(big.Int)
		v.QuoRem(v, pow10(-scale), rem)
		if rem.Sign() != 0 {
			return BigInt{}, fmt.Errorf("parse units '%s': more than %d decimals", s, decimals)
		}
	}
	if d.Negative {
		v.Neg(v)
	}
	return BigIntFromInt(v), nil
}

// FormatUnits renders base units as a decimal string with trailing zeros
// removed, e.g. 1500000000000000000 with 18 decimals is "1.5".
func FormatUnits(amount BigInt, decimals uint8) string {
	d := apd.NewWithBigInt(amount.Ptr(), -int32(decimals))
	s := d.Text('f')
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
