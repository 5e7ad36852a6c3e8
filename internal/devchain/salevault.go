package devchain

import (
	"context"
	"fmt"

	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// SaleVault sells its token balance at a fixed price, paying the treasury directly.
// A non-zero wallet cap limits what one buyer can accumulate.
type SaleVault struct {
	chain     *Chain
	addr      common.Address
	owner     common.Address
	token     *Token
	stable    *Stable
	treasury  common.Address
	price     quant.Micros
	walletCap quant.Wei

	purchased map[common.Address]quant.Wei
	paused    bool
}

// SaleVaultParams configure DeploySaleVault.
type SaleVaultParams struct {
	Token          *Token
	Stable         *Stable
	Treasury       common.Address
	UnitPriceMicro quant.Micros
	WalletCap      quant.Wei // zero disables the cap
}

// DeploySaleVault creates the primary-sale vault. It sells nothing until funded with tokens.
func (c *Chain) DeploySaleVault(ctx context.Context, deployer common.Address, p SaleVaultParams) (*SaleVault, error) {
	if p.UnitPriceMicro <= 0 {
		return nil, fmt.Errorf("deploy IPOManager: unit price must be positive, got %d", p.UnitPriceMicro)
	}
	k, err := c.deploy(ctx, deployer, "IPOManager", func(addr common.Address, _ *engine.Block) (contract, error) {
		return &SaleVault{
			chain:     c,
			addr:      addr,
			owner:     deployer,
			token:     p.Token,
			stable:    p.Stable,
			treasury:  p.Treasury,
			price:     p.UnitPriceMicro,
			walletCap: p.WalletCap,
			purchased: make(map[common.Address]quant.Wei),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*SaleVault), nil
}

// SaleVault binds the sale vault deployed at addr.
func (c *Chain) SaleVault(ctx context.Context, addr common.Address) (*SaleVault, error) {
	return lookup[*SaleVault](c, ctx, addr, "IPOManager")
}

func (v *SaleVault) Address() common.Address { return v.addr }
func (v *SaleVault) kind() string            { return "IPOManager" }

func (v *SaleVault) snapshot() any {
	purchased := make(map[string]quant.Wei, len(v.purchased))
	for k, w := range v.purchased {
		purchased[k.Hex()] = w
	}
	return map[string]any{"price": v.price, "wallet_cap": v.walletCap, "paused": v.paused, "purchased": purchased}
}

// UnitPriceMicro returns the fixed price in micro-settlement per whole token.
func (v *SaleVault) UnitPriceMicro() quant.Micros { return v.price }

// Treasury returns the account receiving sale proceeds.
func (v *SaleVault) Treasury() common.Address { return v.treasury }

// WalletCap returns the cumulative per-buyer ceiling, zero when disabled.
func (v *SaleVault) WalletCap() quant.Wei { return v.walletCap }

// Remaining returns the unsold allocation (the vault's token balance).
func (v *SaleVault) Remaining(ctx context.Context) (quant.Wei, error) {
	var out quant.Wei
	err := v.chain.view(ctx, "ipo.remaining", func(*engine.Block) error {
		out = v.token.book.balanceOf(v.addr)
		return nil
	})
	return out, err
}

// Purchased returns how much buyer has bought so far.
func (v *SaleVault) Purchased(ctx context.Context, buyer common.Address) (quant.Wei, error) {
	var out quant.Wei
	err := v.chain.view(ctx, "ipo.purchased", func(*engine.Block) error {
		out = v.purchased[buyer]
		return nil
	})
	return out, err
}

// Buy sells amount to the signer. The signer must have approved the cost to the vault.
// A cost that truncates to zero moves no settlement, like a zero-value ERC-20 transfer.
func (v *SaleVault) Buy(ctx context.Context, buyer common.Address, amount quant.Wei) error {
	return v.chain.submit(ctx, buyer, "ipo.buy", func(b *engine.Block) error {
		if v.paused {
			return ErrPaused
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}
		if remaining := v.token.book.balanceOf(v.addr); remaining.Lt(amount) {
			return fmt.Errorf("%w: asked %s, remaining %s", ErrExceedsRemaining, amount, remaining)
		}
		bought, err := v.purchased[buyer].Add(amount)
		if err != nil {
			return err
		}
		if !v.walletCap.IsZero() && bought.Gt(v.walletCap) {
			return fmt.Errorf("%w: %s would hold %s, cap %s", ErrWalletCap, buyer.Hex(), bought, v.walletCap)
		}
		cost, err := quant.ToSettlementCost(amount, v.price)
		if err != nil {
			return err
		}
		if err := v.stable.book.checkSpend(buyer, v.addr, cost); err != nil {
			return err
		}

		v.stable.transferFrom(b, buyer, v.addr, v.treasury, cost)
		v.token.transfer(b, v.addr, buyer, amount)
		v.purchased[buyer] = bought
		b.Emit(&event.PurchaseEvent{BaseEvent: event.BaseEvent{Contract: v.addr}, Buyer: buyer, Amount: amount, Cost: cost})
		return nil
	})
}

// SetPaused stops or resumes sales. Owner only.
func (v *SaleVault) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	return v.chain.submit(ctx, caller, "ipo.setPaused", func(*engine.Block) error {
		if caller != v.owner {
			return ErrNotOwner
		}
		v.paused = paused
		return nil
	})
}
