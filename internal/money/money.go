// Package money defines the supported currencies and the conversion between
// major amounts and integer minor units. Everything downstream of this
// package does monetary arithmetic on int64 minor units only.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code from the fixed supported set.
type Currency string

const (
	RSD Currency = "RSD"
	EUR Currency = "EUR"
	USD Currency = "USD"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

var supported = map[Currency]int32{
	RSD: 2,
	EUR: 2,
	USD: 2,
	CHF: 2,
	JPY: 0,
}

var ErrUnsupportedCurrency = errors.New("money: unsupported currency")

// Currencies returns the supported set in a stable order.
func Currencies() []Currency {
	return []Currency{RSD, EUR, USD, CHF, JPY}
}

// Supported reports whether c is one of the known currency codes.
func Supported(c Currency) bool {
	_, ok := supported[c]
	return ok
}

// Decimals returns the number of fractional digits of c (0 for JPY, 2
// otherwise).
func Decimals(c Currency) int32 {
	return supported[c]
}

// ToMinor converts a major-unit amount to minor units, rounding half away
// from zero at the currency precision.
func ToMinor(major decimal.Decimal, c Currency) (int64, error) {
	if !Supported(c) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, c)
	}
	return major.Round(Decimals(c)).Shift(Decimals(c)).IntPart(), nil
}

// ToMajor converts minor units back to a major-unit decimal.
func ToMajor(minor int64, c Currency) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Decimals(c))
}

// ConvertMinor applies an FX rate to a minor-unit amount:
// major_src = minor / 10^srcDecimals, major_dst = major_src * rate,
// result = round(major_dst * 10^dstDecimals).
func ConvertMinor(srcMinor int64, src, dst Currency, rate float64) int64 {
	srcMajor := decimal.NewFromInt(srcMinor).Shift(-Decimals(src))
	dstMajor := srcMajor.Mul(decimal.NewFromFloat(rate))
	return dstMajor.Round(Decimals(dst)).Shift(Decimals(dst)).IntPart()
}
