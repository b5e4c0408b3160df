package common

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestBigInt(t *testing.T) {
	var v BigInt

	textRef := []byte("11111111111111111111")
	require.NoError(t, v.UnmarshalText(textRef))
	textRoundTrip, err := v.MarshalText()
	require.NoError(t, err)
	require.Equal(t, textRef, textRoundTrip)

	jsonRef := []byte("\"22222222222222222222\"")
	require.NoError(t, json.Unmarshal(jsonRef, &v))
	jsonRoundTrip, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, jsonRef, jsonRoundTrip)
}

func TestParseBigInt(t *testing.T) {
	v, err := ParseBigInt("500000")
	require.NoError(t, err)
	require.Equal(t, int64(500000), v.Int64())

	_, err = ParseBigInt("12ab")
	require.Error(t, err)
}

func TestBigIntPtrIsACopy(t *testing.T) {
	v := NewBigInt(7)
	p := v.Ptr()
	p.SetInt64(8)
	require.Equal(t, int64(7), v.Int64())
}

func TestNumericToBigInt(t *testing.T) {
	for _, tc := range []struct {
		name     string
		numeric  pgtype.Numeric
		expected int64
		fails    bool
	}{
		{"plain", pgtype.Numeric{Int: big.NewInt(42), Valid: true}, 42, false},
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(3), Exp: 5, Valid: true}, 300000, false},
		{"integral negative exponent", pgtype.Numeric{Int: big.NewInt(12000), Exp: -3, Valid: true}, 12, false},
		{"fractional", pgtype.Numeric{Int: big.NewInt(12345), Exp: -3, Valid: true}, 0, true},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := NumericToBigInt(tc.numeric)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, v.Int64())
		})
	}
}

func TestBigIntNumeric(t *testing.T) {
	n, err := NewBigInt(1000000).NumericValue()
	require.NoError(t, err)
	require.True(t, n.Valid)

	var v BigInt
	require.NoError(t, v.ScanNumeric(n))
	require.Equal(t, int64(1000000), v.Int64())

	require.Error(t, v.ScanNumeric(pgtype.Numeric{}))
}
