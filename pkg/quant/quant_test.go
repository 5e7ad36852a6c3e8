package quant

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleConstants(t *testing.T) {
	assert.Equal(t, "1000000000000000000", assetScale.Dec())
	assert.Equal(t, USD(1), Micros(1_000_000))
	assert.Equal(t, "1000000000000000000", Tokens(1).String())
}

func TestToSettlementCost(t *testing.T) {
	t.Run("50k tokens at $0.15", func(t *testing.T) {
		cost, err := ToSettlementCost(Tokens(50_000), 150_000)
		require.NoError(t, err)
		assert.Equal(t, Micros(7_500_000_000), cost)
		assert.Equal(t, "$7,500.00", cost.USDString())
	})

	t.Run("550k tokens at $0.15", func(t *testing.T) {
		cost, err := ToSettlementCost(Tokens(550_000), 150_000)
		require.NoError(t, err)
		assert.Equal(t, "$82,500.00", cost.USDString())
	})

	t.Run("2k tokens at $0.05", func(t *testing.T) {
		cost, err := ToSettlementCost(Tokens(2_000), 50_000)
		require.NoError(t, err)
		assert.Equal(t, Micros(100_000_000), cost)
	})

	t.Run("truncates sub-micro remainder", func(t *testing.T) {
		// 1 base unit costs 150000 / 1e18 micros, which floors to zero.
		cost, err := ToSettlementCost(NewWei(1), 150_000)
		require.NoError(t, err)
		assert.Equal(t, Micros(0), cost)

		// 1.5e13 base units * 150000 = 2.25e18 -> 2 micros.
		cost, err = ToSettlementCost(NewWei(15_000_000_000_000), 150_000)
		require.NoError(t, err)
		assert.Equal(t, Micros(2), cost)
	})

	t.Run("product overflow", func(t *testing.T) {
		huge := WeiFromUint256(new(uint256.Int).SetAllOne())
		_, err := ToSettlementCost(huge, 2)
		assert.True(t, errors.Is(err, ErrScaleOverflow), "got %v", err)
	})

	t.Run("result does not fit micros", func(t *testing.T) {
		// 1e30 tokens at $1 is 1e36 micros.
		amount, err := WeiFromDecimal(decimal.New(1, 30))
		require.NoError(t, err)
		_, err = ToSettlementCost(amount, USD(1))
		assert.True(t, errors.Is(err, ErrScaleOverflow), "got %v", err)
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := ToSettlementCost(Tokens(1), -1)
		assert.True(t, errors.Is(err, ErrNegativeAmount))
	})
}

func TestSpotPrice(t *testing.T) {
	price, err := SpotPrice(Tokens(50_000), USD(7_500))
	require.NoError(t, err)
	assert.Equal(t, Micros(150_000), price)
	assert.Equal(t, "0.150000", price.PriceString())

	_, err = SpotPrice(Wei{}, USD(1))
	assert.Error(t, err)
}

func TestAssetForSettlement(t *testing.T) {
	w, err := AssetForSettlement(USD(7_500), 150_000)
	require.NoError(t, err)
	assert.True(t, w.Eq(Tokens(50_000)), "got %s", w)
}

func TestWeiArithmetic(t *testing.T) {
	a := Tokens(600_000)
	b := Tokens(50_000)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.Eq(Tokens(550_000)))

	_, err = b.Sub(a)
	assert.True(t, errors.Is(err, ErrNegativeAmount))

	sum, err := diff.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Eq(a))

	max := WeiFromUint256(new(uint256.Int).SetAllOne())
	_, err = max.Add(NewWei(1))
	assert.True(t, errors.Is(err, ErrScaleOverflow))

	assert.True(t, MinWei(a, b).Eq(b))
	assert.Equal(t, "550,000.0", diff.Format())
}

func TestDecimalConversions(t *testing.T) {
	w, err := WeiFromDecimal(decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", w.String())
	assert.True(t, w.Decimal().Equal(decimal.RequireFromString("0.5")))

	_, err = WeiFromDecimal(decimal.RequireFromString("-1"))
	assert.True(t, errors.Is(err, ErrNegativeAmount))

	m, err := MicrosFromDecimal(decimal.RequireFromString("0.15"))
	require.NoError(t, err)
	assert.Equal(t, Micros(150_000), m)

	_, err = MicrosFromDecimal(decimal.RequireFromString("0.0000001"))
	assert.True(t, errors.Is(err, ErrPrecision))
}

func TestWeiTextRoundTrip(t *testing.T) {
	var w Wei
	require.NoError(t, w.UnmarshalText([]byte("123456789012345678901234")))
	b, err := w.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234", string(b))
	assert.Error(t, w.UnmarshalText([]byte("abc")))
}

func TestWeiFormat(t *testing.T) {
	tests := []struct {
		name string
		w    Wei
		want string
	}{
		{"whole", Tokens(550_000), "550,000.0"},
		{"one place", mustWei(t, "0.5"), "0.5"},
		{"six places", mustWei(t, "22222.123456"), "22,222.123456"},
		{"single base unit", NewWei(1), "0.000000000000000001"},
		{"dust on a whole amount", mustAdd(t, Tokens(550_000), NewWei(1)), "550,000.000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.w.Format())
		})
	}
}

func mustWei(t *testing.T, s string) Wei {
	t.Helper()
	w, err := WeiFromDecimal(decimal.RequireFromString(s))
	require.NoError(t, err)
	return w
}

func mustAdd(t *testing.T, a, b Wei) Wei {
	t.Helper()
	sum, err := a.Add(b)
	require.NoError(t, err)
	return sum
}

func TestUSD_PanicsOnOverflow(t *testing.T) {
	assert.Equal(t, Micros(-5_000_000), USD(-5))
	assert.Panics(t, func() { USD(math.MaxInt64 / 100) })
}

func TestMicrosFormatting(t *testing.T) {
	assert.Equal(t, "$0.00", Micros(0).USDString())
	assert.Equal(t, "$1,234,567.89", Micros(1_234_567_891_234).USDString())
	assert.Equal(t, "-$5.00", USD(-5).USDString())
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$96,154.20", FormatUSD(decimal.RequireFromString("96154.2")))
	assert.Equal(t, "$0.01", FormatUSD(decimal.RequireFromString("0.005")))
	assert.Equal(t, "-$1,000.00", FormatUSD(decimal.NewFromInt(-1000)))
}
