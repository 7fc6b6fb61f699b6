package id

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

// maxAmountLen bounds raw amount text; a uint256 has at most 78 digits.
const maxAmountLen = 100

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseUnits converts a human decimal amount ("1.25") into base units for a
// token with the given decimals. Negative amounts, excess precision,
// exponent notation and anything above a uint256 are rejected.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return nil, clierr.New(clierr.CodeInputValidation, "amount is required")
	}
	if len(clean) > maxAmountLen {
		return nil, clierr.New(clierr.CodeInputValidation, "amount is too long")
	}
	if strings.ContainsAny(clean, "eE") {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("%q: write the amount without an exponent", clean))
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeInputValidation, "decimals must be >= 0")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("%q is not a decimal amount", clean))
	}
	if d.Sign() < 0 {
		return nil, clierr.New(clierr.CodeInputValidation, "amount must be non-negative")
	}
	if -d.Exponent() > int32(decimals) {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	if decimals > maxAmountLen {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("decimals %d out of range", decimals))
	}
	out := d.Shift(int32(decimals)).BigInt()
	if out.Cmp(maxUint256) > 0 {
		return nil, clierr.New(clierr.CodeInputValidation, "amount exceeds the uint256 range")
	}
	return out, nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	return decimal.NewFromBigInt(baseUnits, int32(-decimals)).String()
}

// FormatUnitsFixed renders base units rounded down to places fractional digits.
func FormatUnitsFixed(baseUnits *big.Int, decimals int, places int32) string {
	if baseUnits == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(baseUnits, int32(-decimals)).RoundDown(places).StringFixed(places)
}

// FormatPercent renders a basis-point style fee percent (1/100 of a percent).
func FormatPercent(bps uint16) string {
	return decimal.New(int64(bps), -2).String() + "%"
}
