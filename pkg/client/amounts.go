package client

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fortiblox/savefi/pkg/types"
)

// ErrInvalidAmount is returned for SOL amounts that are not a
// non-negative number of whole lamports.
var ErrInvalidAmount = errors.New("invalid SOL amount")

// solDecimals is the number of decimal places of one SOL in lamports.
const solDecimals = 9

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ParseSOL converts a decimal SOL amount such as "0.25" to lamports.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	lamports := d.Shift(solDecimals)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, solDecimals)
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return lamports.BigInt().Uint64(), nil
}

// FormatSOL renders lamports as a decimal SOL amount without trailing
// zeros, e.g. 250_000_000 as "0.25".
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals).String()
}

// SOL converts whole SOL to lamports.
func SOL(n uint64) uint64 {
	return n * uint64(types.LamportsPerSOL)
}

// SaveAmount previews the fee and saved lamports of a trade of amount
// lamports at the given rates, matching the program's rounding.
func SaveAmount(amount uint64, feeRate, saveRate uint8) (fee, saved uint64) {
	a := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
	f := a.Mul(decimal.NewFromInt(int64(feeRate))).Div(decimal.NewFromInt(100)).Floor()
	s := a.Sub(f).Mul(decimal.NewFromInt(int64(saveRate))).Div(decimal.NewFromInt(100)).Floor()
	return f.BigInt().Uint64(), s.BigInt().Uint64()
}
