package devchain

import (
	"context"

	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the artist's 18-decimal asset. The full supply is minted to the deployer.
type Token struct {
	chain  *Chain
	addr   common.Address
	Name   string
	Symbol string
	book   *assetBook
}

// DeployToken creates the asset token and mints supply to deployer.
func (c *Chain) DeployToken(ctx context.Context, deployer common.Address, name, symbol string, supply quant.Wei) (*Token, error) {
	k, err := c.deploy(ctx, deployer, "ArtistToken", func(addr common.Address, b *engine.Block) (contract, error) {
		t := &Token{chain: c, addr: addr, Name: name, Symbol: symbol, book: newAssetBook(symbol)}
		t.book.mint(deployer, supply, b.Number)
		b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: addr}, To: deployer, Asset: &supply})
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*Token), nil
}

// Token binds the asset token deployed at addr.
func (c *Chain) Token(ctx context.Context, addr common.Address) (*Token, error) {
	return lookup[*Token](c, ctx, addr, "ArtistToken")
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) kind() string            { return "ArtistToken" }

func (t *Token) snapshot() any {
	return map[string]any{"symbol": t.Symbol, "supply": t.book.supply, "balances": t.book.snapshot()}
}

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply(ctx context.Context) (quant.Wei, error) {
	var out quant.Wei
	err := t.chain.view(ctx, "token.totalSupply", func(*engine.Block) error {
		out = t.book.supply
		return nil
	})
	return out, err
}

// BalanceOf returns owner's balance.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (quant.Wei, error) {
	var out quant.Wei
	err := t.chain.view(ctx, "token.balanceOf", func(*engine.Block) error {
		out = t.book.balanceOf(owner)
		return nil
	})
	return out, err
}

// Allowance returns how much spender may move out of owner.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (quant.Wei, error) {
	var out quant.Wei
	err := t.chain.view(ctx, "token.allowance", func(*engine.Block) error {
		out = t.book.allowance(owner, spender)
		return nil
	})
	return out, err
}

// Transfer moves amount from the signer to to.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount quant.Wei) error {
	return t.chain.submit(ctx, from, "token.transfer", func(b *engine.Block) error {
		if err := t.book.checkMove(from, amount); err != nil {
			return err
		}
		t.transfer(b, from, to, amount)
		return nil
	})
}

// Approve sets spender's allowance over the signer's balance.
func (t *Token) Approve(ctx context.Context, owner, spender common.Address, amount quant.Wei) error {
	return t.chain.submit(ctx, owner, "token.approve", func(b *engine.Block) error {
		t.book.approve(owner, spender, amount)
		b.Emit(&event.ApprovalEvent{BaseEvent: event.BaseEvent{Contract: t.addr}, Owner: owner, Spender: spender, Asset: &amount})
		return nil
	})
}

// transfer applies a checked move and logs it.
func (t *Token) transfer(b *engine.Block, from, to common.Address, amount quant.Wei) {
	t.book.move(from, to, amount, b.Number)
	t.book.verifyInvariant()
	b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: t.addr}, From: from, To: to, Asset: &amount})
}

// transferFrom applies a checked allowance spend and logs it.
func (t *Token) transferFrom(b *engine.Block, owner, spender, to common.Address, amount quant.Wei) {
	t.book.spend(owner, spender, to, amount, b.Number)
	t.book.verifyInvariant()
	b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: t.addr}, From: owner, To: to, Asset: &amount})
}
