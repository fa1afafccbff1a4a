package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinor(t *testing.T) {
	cases := []struct {
		major    string
		currency Currency
		want     int64
	}{
		{"50.00", RSD, 5000},
		{"0.01", EUR, 1},
		{"12.345", USD, 1235}, // half away from zero
		{"-12.345", CHF, -1235},
		{"1500", JPY, 1500},
		{"1500.4", JPY, 1500},
		{"1500.5", JPY, 1501},
	}
	for _, c := range cases {
		got, err := ToMinor(decimal.RequireFromString(c.major), c.currency)
		if err != nil {
			t.Fatalf("ToMinor(%s %s): %v", c.major, c.currency, err)
		}
		if got != c.want {
			t.Errorf("ToMinor(%s %s) = %d, want %d", c.major, c.currency, got, c.want)
		}
	}
}

func TestToMinorUnsupported(t *testing.T) {
	if _, err := ToMinor(decimal.New(1, 0), Currency("GBP")); err == nil {
		t.Fatal("expected error for unsupported currency")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range Currencies() {
		major := decimal.RequireFromString("123.45")
		minor, err := ToMinor(major, c)
		if err != nil {
			t.Fatal(err)
		}
		back := ToMajor(minor, c)
		diff := major.Sub(back).Abs()
		// within one unit of rounding at the currency precision
		limit := decimal.New(1, -Decimals(c))
		if diff.GreaterThan(limit) {
			t.Errorf("%s: round trip drifted by %s", c, diff)
		}
	}
}

func TestConvertMinor(t *testing.T) {
	// 2000.00 EUR at 1.1 -> 2200.00 USD
	if got := ConvertMinor(200000, EUR, USD, 1.1); got != 220000 {
		t.Errorf("EUR->USD = %d, want 220000", got)
	}
	// 100.00 EUR at 163.2 -> 16320 JPY (zero-decimal target)
	if got := ConvertMinor(10000, EUR, JPY, 163.2); got != 16320 {
		t.Errorf("EUR->JPY = %d, want 16320", got)
	}
	// 1000 JPY at 0.0061 -> 6.10 EUR
	if got := ConvertMinor(1000, JPY, EUR, 0.0061); got != 610 {
		t.Errorf("JPY->EUR = %d, want 610", got)
	}
}
