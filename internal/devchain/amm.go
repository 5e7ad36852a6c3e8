package devchain

import (
	"context"
	"fmt"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const bpsDenominator = 10_000

// AMM is a constant-product market between the asset and the settlement coin.
// Reserves are tracked internally; the swap fee stays in the pool.
type AMM struct {
	chain  *Chain
	addr   common.Address
	owner  common.Address
	token  *Token
	stable *Stable
	feeBps uint64

	reserveAsset      quant.Wei
	reserveSettlement quant.Micros
}

// DeployAMM creates an empty constant-product market.
func (c *Chain) DeployAMM(ctx context.Context, deployer common.Address, token *Token, stable *Stable, feeBps int) (*AMM, error) {
	if feeBps < 0 || feeBps >= bpsDenominator {
		return nil, fmt.Errorf("deploy SimpleAMM: fee %d bps out of range", feeBps)
	}
	k, err := c.deploy(ctx, deployer, "SimpleAMM", func(addr common.Address, _ *engine.Block) (contract, error) {
		return &AMM{chain: c, addr: addr, owner: deployer, token: token, stable: stable, feeBps: uint64(feeBps)}, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*AMM), nil
}

// AMM binds the market deployed at addr.
func (c *Chain) AMM(ctx context.Context, addr common.Address) (*AMM, error) {
	return lookup[*AMM](c, ctx, addr, "SimpleAMM")
}

func (m *AMM) Address() common.Address { return m.addr }
func (m *AMM) kind() string            { return "SimpleAMM" }

func (m *AMM) snapshot() any {
	return domain.MarketState{ReserveAsset: m.reserveAsset, ReserveSettlement: m.reserveSettlement}
}

// Reserves returns the current reserves.
func (m *AMM) Reserves(ctx context.Context) (domain.MarketState, error) {
	var out domain.MarketState
	err := m.chain.view(ctx, "amm.reserves", func(*engine.Block) error {
		out = domain.MarketState{ReserveAsset: m.reserveAsset, ReserveSettlement: m.reserveSettlement}
		return nil
	})
	return out, err
}

// SpotPriceMicro returns reserveSettlement * 10^18 / reserveAsset.
func (m *AMM) SpotPriceMicro(ctx context.Context) (quant.Micros, error) {
	var out quant.Micros
	err := m.chain.view(ctx, "amm.spotPriceMicroUSDC", func(*engine.Block) error {
		if m.reserveAsset.IsZero() {
			return ErrNoLiquidity
		}
		p, err := quant.SpotPrice(m.reserveAsset, m.reserveSettlement)
		out = p
		return err
	})
	return out, err
}

// AddLiquidity pulls both amounts from the provider on its allowances.
func (m *AMM) AddLiquidity(ctx context.Context, provider common.Address, asset quant.Wei, settlement quant.Micros) error {
	return m.chain.submit(ctx, provider, "amm.addLiquidity", func(b *engine.Block) error {
		if asset.IsZero() || settlement <= 0 {
			return ErrZeroAmount
		}
		if err := m.token.book.checkSpend(provider, m.addr, asset); err != nil {
			return err
		}
		if err := m.stable.book.checkSpend(provider, m.addr, settlement); err != nil {
			return err
		}
		ra, err := m.reserveAsset.Add(asset)
		if err != nil {
			return err
		}
		rs, err := addMicros(m.reserveSettlement, settlement)
		if err != nil {
			return err
		}

		m.token.transferFrom(b, provider, m.addr, m.addr, asset)
		m.stable.transferFrom(b, provider, m.addr, m.addr, settlement)
		m.reserveAsset, m.reserveSettlement = ra, rs
		b.Emit(&event.LiquidityAddedEvent{BaseEvent: event.BaseEvent{Contract: m.addr}, Provider: provider, Asset: asset, Settlement: settlement})
		return nil
	})
}

// BuyTokens swaps settlementIn for asset and returns the amount received.
func (m *AMM) BuyTokens(ctx context.Context, buyer common.Address, settlementIn quant.Micros) (quant.Wei, error) {
	var out quant.Wei
	err := m.chain.submit(ctx, buyer, "amm.buyTokens", func(b *engine.Block) error {
		if settlementIn <= 0 {
			return ErrZeroAmount
		}
		if m.reserveAsset.IsZero() || m.reserveSettlement <= 0 {
			return ErrNoLiquidity
		}
		if err := m.stable.book.checkSpend(buyer, m.addr, settlementIn); err != nil {
			return err
		}
		fee := uint256.NewInt(bpsDenominator - m.feeBps)
		inAfterFee, _ := new(uint256.Int).MulDivOverflow(uint256.NewInt(uint64(settlementIn)), fee, uint256.NewInt(bpsDenominator))
		denom := new(uint256.Int).Add(uint256.NewInt(uint64(m.reserveSettlement)), inAfterFee)
		amountOut, overflow := new(uint256.Int).MulDivOverflow(m.reserveAsset.Uint256(), inAfterFee, denom)
		if overflow {
			return quant.ErrScaleOverflow
		}
		if amountOut.IsZero() {
			return fmt.Errorf("%w: %d buys nothing", ErrZeroAmount, settlementIn)
		}
		received := quant.WeiFromUint256(amountOut)
		ra, err := m.reserveAsset.Sub(received)
		if err != nil {
			return err
		}
		rs, err := addMicros(m.reserveSettlement, settlementIn)
		if err != nil {
			return err
		}

		m.stable.transferFrom(b, buyer, m.addr, m.addr, settlementIn)
		m.token.transfer(b, m.addr, buyer, received)
		m.reserveAsset, m.reserveSettlement = ra, rs
		b.Emit(&event.SwapEvent{BaseEvent: event.BaseEvent{Contract: m.addr}, Trader: buyer, Buy: true, AssetAmount: received, SettlementAmt: settlementIn})
		out = received
		return nil
	})
	return out, err
}

// SellTokens swaps assetIn for settlement and returns the amount received.
func (m *AMM) SellTokens(ctx context.Context, seller common.Address, assetIn quant.Wei) (quant.Micros, error) {
	var out quant.Micros
	err := m.chain.submit(ctx, seller, "amm.sellTokens", func(b *engine.Block) error {
		if assetIn.IsZero() {
			return ErrZeroAmount
		}
		if m.reserveAsset.IsZero() || m.reserveSettlement <= 0 {
			return ErrNoLiquidity
		}
		if err := m.token.book.checkSpend(seller, m.addr, assetIn); err != nil {
			return err
		}
		fee := uint256.NewInt(bpsDenominator - m.feeBps)
		inAfterFee, overflow := new(uint256.Int).MulDivOverflow(assetIn.Uint256(), fee, uint256.NewInt(bpsDenominator))
		if overflow {
			return quant.ErrScaleOverflow
		}
		denom, overflow := new(uint256.Int).AddOverflow(m.reserveAsset.Uint256(), inAfterFee)
		if overflow {
			return quant.ErrScaleOverflow
		}
		settlementOut, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(uint64(m.reserveSettlement)), inAfterFee, denom)
		if overflow || !settlementOut.IsUint64() {
			return quant.ErrScaleOverflow
		}
		paid := quant.Micros(settlementOut.Uint64())
		if paid <= 0 {
			return fmt.Errorf("%w: %s sells for nothing", ErrZeroAmount, assetIn)
		}
		ra, err := m.reserveAsset.Add(assetIn)
		if err != nil {
			return err
		}

		m.token.transferFrom(b, seller, m.addr, m.addr, assetIn)
		m.stable.transfer(b, m.addr, seller, paid)
		m.reserveAsset, m.reserveSettlement = ra, m.reserveSettlement-paid
		b.Emit(&event.SwapEvent{BaseEvent: event.BaseEvent{Contract: m.addr}, Trader: seller, AssetAmount: assetIn, SettlementAmt: paid})
		out = paid
		return nil
	})
	return out, err
}

func addMicros(a, b quant.Micros) (quant.Micros, error) {
	if b > 0 && a > quant.Micros(1<<63-1)-b {
		return 0, fmt.Errorf("%w: %d + %d", quant.ErrScaleOverflow, a, b)
	}
	return a + b, nil
}
