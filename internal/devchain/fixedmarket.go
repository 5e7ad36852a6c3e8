package devchain

import (
	"context"
	"fmt"

	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// FixedMarket trades the asset at an owner-set price against its own inventory.
type FixedMarket struct {
	chain  *Chain
	addr   common.Address
	owner  common.Address
	token  *Token
	stable *Stable
	price  quant.Micros
}

// DeployFixedMarket creates a fixed-price market with no price and no inventory.
func (c *Chain) DeployFixedMarket(ctx context.Context, deployer common.Address, token *Token, stable *Stable) (*FixedMarket, error) {
	k, err := c.deploy(ctx, deployer, "FakeSecondary", func(addr common.Address, _ *engine.Block) (contract, error) {
		return &FixedMarket{chain: c, addr: addr, owner: deployer, token: token, stable: stable}, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*FixedMarket), nil
}

// FixedMarket binds the fixed-price market deployed at addr.
func (c *Chain) FixedMarket(ctx context.Context, addr common.Address) (*FixedMarket, error) {
	return lookup[*FixedMarket](c, ctx, addr, "FakeSecondary")
}

func (f *FixedMarket) Address() common.Address { return f.addr }
func (f *FixedMarket) kind() string            { return "FakeSecondary" }

func (f *FixedMarket) snapshot() any {
	return map[string]any{"price": f.price, "owner": f.owner.Hex()}
}

// SetPrice reprices the market. Owner only.
func (f *FixedMarket) SetPrice(ctx context.Context, owner common.Address, price quant.Micros) error {
	return f.chain.submit(ctx, owner, "secondary.setPrice", func(b *engine.Block) error {
		if owner != f.owner {
			return ErrNotOwner
		}
		if price <= 0 {
			return fmt.Errorf("%w: price %d", ErrZeroAmount, price)
		}
		f.price = price
		b.Emit(&event.PriceSetEvent{BaseEvent: event.BaseEvent{Contract: f.addr}, Price: price})
		return nil
	})
}

// Price returns the current price.
func (f *FixedMarket) Price(ctx context.Context) (quant.Micros, error) {
	var out quant.Micros
	err := f.chain.view(ctx, "secondary.price", func(*engine.Block) error {
		out = f.price
		return nil
	})
	return out, err
}

// BuyTokens sells amount from inventory at the current price.
func (f *FixedMarket) BuyTokens(ctx context.Context, buyer common.Address, amount quant.Wei) error {
	return f.chain.submit(ctx, buyer, "secondary.buyTokens", func(b *engine.Block) error {
		cost, err := f.quote(amount)
		if err != nil {
			return err
		}
		if err := f.token.book.checkMove(f.addr, amount); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		if err := f.stable.book.checkSpend(buyer, f.addr, cost); err != nil {
			return err
		}

		f.stable.transferFrom(b, buyer, f.addr, f.addr, cost)
		f.token.transfer(b, f.addr, buyer, amount)
		b.Emit(&event.SwapEvent{BaseEvent: event.BaseEvent{Contract: f.addr}, Trader: buyer, Buy: true, AssetAmount: amount, SettlementAmt: cost})
		return nil
	})
}

// SellTokens buys amount into inventory at the current price.
func (f *FixedMarket) SellTokens(ctx context.Context, seller common.Address, amount quant.Wei) error {
	return f.chain.submit(ctx, seller, "secondary.sellTokens", func(b *engine.Block) error {
		proceeds, err := f.quote(amount)
		if err != nil {
			return err
		}
		if err := f.stable.book.checkMove(f.addr, proceeds); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		if err := f.token.book.checkSpend(seller, f.addr, amount); err != nil {
			return err
		}

		f.token.transferFrom(b, seller, f.addr, f.addr, amount)
		f.stable.transfer(b, f.addr, seller, proceeds)
		b.Emit(&event.SwapEvent{BaseEvent: event.BaseEvent{Contract: f.addr}, Trader: seller, AssetAmount: amount, SettlementAmt: proceeds})
		return nil
	})
}

// Balances returns the market's asset and settlement inventory.
func (f *FixedMarket) Balances(ctx context.Context) (quant.Wei, quant.Micros, error) {
	var asset quant.Wei
	var settlement quant.Micros
	err := f.chain.view(ctx, "secondary.balances", func(*engine.Block) error {
		asset = f.token.book.balanceOf(f.addr)
		settlement = f.stable.book.balanceOf(f.addr)
		return nil
	})
	return asset, settlement, err
}

func (f *FixedMarket) quote(amount quant.Wei) (quant.Micros, error) {
	if f.price <= 0 {
		return 0, ErrPriceUnset
	}
	if amount.IsZero() {
		return 0, ErrZeroAmount
	}
	return quant.ToSettlementCost(amount, f.price)
}
