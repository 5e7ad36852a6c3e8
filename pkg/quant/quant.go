// Package quant holds the fixed-point units of the simulation.
//
// Asset amounts are 18-decimal integers on a 256-bit word (Wei), the same width the ledgers use.
// Settlement amounts are 6-decimal integers (Micros). The scale of each value is carried by its
// type; conversions between the two live in convert.go and nowhere else.
package quant

import (
	"errors"
	"fmt"
	"strings"

	"artist_ipo/pkg/safe"

	"github.com/dustin/go-humanize"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// AssetDecimals is the number of decimal places of the asset unit.
	AssetDecimals = 18
	// SettlementDecimals is the number of decimal places of the settlement currency.
	SettlementDecimals = 6
)

var (
	// ErrScaleOverflow is returned when a fixed-point intermediate exceeds its integer range.
	ErrScaleOverflow = errors.New("scale overflow")
	// ErrNegativeAmount is returned when an unsigned amount would go below zero.
	ErrNegativeAmount = errors.New("negative amount")
	// ErrPrecision is returned when a value carries more decimals than its unit allows.
	ErrPrecision = errors.New("precision exceeds unit scale")
)

var (
	assetScale      = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(AssetDecimals))
	settlementScale = int64(1_000_000)
)

// Wei is an asset amount in 18-decimal base units.
// The zero value is zero. Wei is an immutable value type.
type Wei struct {
	v uint256.Int
}

// NewWei returns n base units.
func NewWei(n uint64) Wei {
	var w Wei
	w.v.SetUint64(n)
	return w
}

// Tokens returns n whole asset units (n * 10^18 base units).
func Tokens(n uint64) Wei {
	var w Wei
	w.v.Mul(uint256.NewInt(n), assetScale)
	return w
}

// WeiFromUint256 copies a 256-bit word into a Wei.
func WeiFromUint256(x *uint256.Int) Wei {
	var w Wei
	w.v.Set(x)
	return w
}

// ParseWei parses a base-10 string of base units.
func ParseWei(s string) (Wei, error) {
	var w Wei
	if err := w.v.SetFromDecimal(s); err != nil {
		return Wei{}, fmt.Errorf("parse wei %q: %w", s, err)
	}
	return w, nil
}

// WeiFromDecimal converts a whole-unit decimal (e.g. "50000" or "0.5") into base units.
func WeiFromDecimal(d decimal.Decimal) (Wei, error) {
	if d.IsNegative() {
		return Wei{}, fmt.Errorf("%w: %s", ErrNegativeAmount, d)
	}
	scaled := d.Shift(AssetDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Wei{}, fmt.Errorf("%w: %s has more than %d decimals", ErrPrecision, d, AssetDecimals)
	}
	x, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Wei{}, fmt.Errorf("%w: %s does not fit 256 bits", ErrScaleOverflow, d)
	}
	return WeiFromUint256(x), nil
}

// Uint256 returns a copy of the underlying word.
func (w Wei) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&w.v)
}

// Add returns w + o, failing on 256-bit overflow.
func (w Wei) Add(o Wei) (Wei, error) {
	var r Wei
	if _, overflow := r.v.AddOverflow(&w.v, &o.v); overflow {
		return Wei{}, fmt.Errorf("%w: %s + %s", ErrScaleOverflow, w, o)
	}
	return r, nil
}

// Sub returns w - o, failing if o > w.
func (w Wei) Sub(o Wei) (Wei, error) {
	var r Wei
	if _, underflow := r.v.SubOverflow(&w.v, &o.v); underflow {
		return Wei{}, fmt.Errorf("%w: %s - %s", ErrNegativeAmount, w, o)
	}
	return r, nil
}

// Cmp compares w and o and returns -1, 0 or +1.
func (w Wei) Cmp(o Wei) int { return w.v.Cmp(&o.v) }

// Lt reports w < o.
func (w Wei) Lt(o Wei) bool { return w.v.Lt(&o.v) }

// Gt reports w > o.
func (w Wei) Gt(o Wei) bool { return w.v.Gt(&o.v) }

// Eq reports w == o.
func (w Wei) Eq(o Wei) bool { return w.v.Eq(&o.v) }

// IsZero reports w == 0.
func (w Wei) IsZero() bool { return w.v.IsZero() }

// MinWei returns the smaller of a and b.
func MinWei(a, b Wei) Wei {
	if a.Lt(b) {
		return a
	}
	return b
}

// String returns the amount in base units.
func (w Wei) String() string { return w.v.Dec() }

// Decimal returns the amount in whole asset units.
func (w Wei) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(w.v.ToBig(), -AssetDecimals)
}

// Format renders whole asset units with thousands separators, e.g. "550,000.0".
// Amounts finer than six places are printed in full, so dust never renders as zero.
func (w Wei) Format() string {
	d := w.Decimal()
	places := int32(1)
	switch {
	case d.Equal(d.Truncate(1)):
	case d.Equal(d.Truncate(6)):
		places = 6
	default:
		places = AssetDecimals
	}
	return commaFixed(d, places)
}

// MarshalText implements encoding.TextMarshaler.
func (w Wei) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Wei) UnmarshalText(b []byte) error {
	parsed, err := ParseWei(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Micros is a settlement-currency amount in 6-decimal base units.
type Micros int64

// USD returns n whole settlement units. It is meant for constants and panics if n
// does not fit in micros; parse untrusted input with MicrosFromDecimal.
func USD(n int64) Micros {
	return Micros(safe.SafeMul(n, settlementScale))
}

// MicrosFromDecimal converts a whole-unit decimal (e.g. "7500" or "0.15") into micros.
func MicrosFromDecimal(d decimal.Decimal) (Micros, error) {
	scaled := d.Shift(SettlementDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrPrecision, d, SettlementDecimals)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s does not fit int64 micros", ErrScaleOverflow, d)
	}
	return Micros(scaled.IntPart()), nil
}

// Decimal returns the amount in whole settlement units.
func (m Micros) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -SettlementDecimals)
}

// USDString renders the amount as dollars, e.g. "$82,500.00".
func (m Micros) USDString() string {
	return FormatUSD(m.Decimal())
}

// FormatUSD renders a dollar amount rounded to cents, e.g. "$96,154.20".
func FormatUSD(d decimal.Decimal) string {
	s := commaFixed(d, 2)
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

// PriceString renders a per-unit price with six places, e.g. "0.150000".
func (m Micros) PriceString() string {
	return m.Decimal().StringFixed(SettlementDecimals)
}

func commaFixed(d decimal.Decimal, places int32) string {
	fixed := d.StringFixed(places)
	intPart, frac, _ := strings.Cut(fixed, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	whole, err := decimal.NewFromString(intPart)
	if err != nil || !whole.BigInt().IsInt64() {
		return fixed
	}
	out := humanize.Comma(whole.IntPart())
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
