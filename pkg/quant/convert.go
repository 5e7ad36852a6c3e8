package quant

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// ToSettlementCost prices an asset amount at a per-unit settlement price:
//
//	cost = amountAsset * unitPriceMicro / 10^AssetDecimals
//
// The product is formed on the full 256-bit word and the division truncates, matching the
// floor rounding of the ledgers. A product wider than 256 bits, or a cost that does not fit
// Micros, fails with ErrScaleOverflow.
func ToSettlementCost(amountAsset Wei, unitPriceMicro Micros) (Micros, error) {
	if unitPriceMicro < 0 {
		return 0, fmt.Errorf("%w: unit price %d", ErrNegativeAmount, unitPriceMicro)
	}
	price := uint256.NewInt(uint64(unitPriceMicro))
	product, overflow := new(uint256.Int).MulOverflow(&amountAsset.v, price)
	if overflow {
		return 0, fmt.Errorf("%w: %s * %d exceeds 256 bits", ErrScaleOverflow, amountAsset, unitPriceMicro)
	}
	cost := product.Div(product, assetScale)
	return toMicros(cost)
}

// AssetForSettlement is the inverse conversion: how many base units a settlement amount buys
// at a per-unit price, truncating.
func AssetForSettlement(settlement Micros, unitPriceMicro Micros) (Wei, error) {
	if settlement < 0 || unitPriceMicro <= 0 {
		return Wei{}, fmt.Errorf("%w: settlement %d at price %d", ErrNegativeAmount, settlement, unitPriceMicro)
	}
	var w Wei
	w.v.Mul(uint256.NewInt(uint64(settlement)), assetScale)
	w.v.Div(&w.v, uint256.NewInt(uint64(unitPriceMicro)))
	return w, nil
}

// SpotPrice returns the micro-settlement price of one whole asset unit implied by a pair of
// reserves: reserveSettlement * 10^AssetDecimals / reserveAsset.
func SpotPrice(reserveAsset Wei, reserveSettlement Micros) (Micros, error) {
	if reserveAsset.IsZero() {
		return 0, fmt.Errorf("spot price: asset reserve is zero")
	}
	if reserveSettlement < 0 {
		return 0, fmt.Errorf("%w: settlement reserve %d", ErrNegativeAmount, reserveSettlement)
	}
	num, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(reserveSettlement)), assetScale)
	if overflow {
		return 0, fmt.Errorf("%w: settlement reserve %d", ErrScaleOverflow, reserveSettlement)
	}
	return toMicros(num.Div(num, &reserveAsset.v))
}

func toMicros(x *uint256.Int) (Micros, error) {
	if !x.IsUint64() || x.Uint64() > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s does not fit int64 micros", ErrScaleOverflow, x.Dec())
	}
	return Micros(x.Uint64()), nil
}
