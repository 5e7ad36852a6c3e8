package devchain

import (
	"context"
	"fmt"
	"math"

	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Stable is the 6-decimal mock settlement coin. Anyone may mint to themselves.
type Stable struct {
	chain  *Chain
	addr   common.Address
	Symbol string
	book   *settlementBook
}

// DeployStable creates the settlement coin with zero supply.
func (c *Chain) DeployStable(ctx context.Context, deployer common.Address) (*Stable, error) {
	k, err := c.deploy(ctx, deployer, "MockUSDC", func(addr common.Address, _ *engine.Block) (contract, error) {
		return &Stable{chain: c, addr: addr, Symbol: "mUSDC", book: newSettlementBook("mUSDC")}, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*Stable), nil
}

// Stable binds the settlement coin deployed at addr.
func (c *Chain) Stable(ctx context.Context, addr common.Address) (*Stable, error) {
	return lookup[*Stable](c, ctx, addr, "MockUSDC")
}

func (s *Stable) Address() common.Address { return s.addr }
func (s *Stable) kind() string            { return "MockUSDC" }

func (s *Stable) snapshot() any {
	return map[string]any{"supply": s.book.supply, "balances": s.book.snapshot()}
}

// Faucet mints amount to the signer to.
func (s *Stable) Faucet(ctx context.Context, to common.Address, amount quant.Micros) error {
	return s.chain.submit(ctx, to, "usdc.faucet", func(b *engine.Block) error {
		if amount <= 0 {
			return ErrZeroAmount
		}
		if int64(amount) > math.MaxInt64-int64(s.book.supply) {
			return fmt.Errorf("%w: faucet of %d would overflow supply", quant.ErrScaleOverflow, amount)
		}
		s.book.mint(to, amount, b.Number)
		s.book.verifyInvariant()
		b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: s.addr}, To: to, Settlement: &amount})
		return nil
	})
}

// BalanceOf returns owner's balance.
func (s *Stable) BalanceOf(ctx context.Context, owner common.Address) (quant.Micros, error) {
	var out quant.Micros
	err := s.chain.view(ctx, "usdc.balanceOf", func(*engine.Block) error {
		out = s.book.balanceOf(owner)
		return nil
	})
	return out, err
}

// Transfer moves amount from the signer to to.
func (s *Stable) Transfer(ctx context.Context, from, to common.Address, amount quant.Micros) error {
	return s.chain.submit(ctx, from, "usdc.transfer", func(b *engine.Block) error {
		if err := s.book.checkMove(from, amount); err != nil {
			return err
		}
		s.transfer(b, from, to, amount)
		return nil
	})
}

// Approve sets spender's allowance over the signer's balance.
func (s *Stable) Approve(ctx context.Context, owner, spender common.Address, amount quant.Micros) error {
	return s.chain.submit(ctx, owner, "usdc.approve", func(b *engine.Block) error {
		if amount < 0 {
			return fmt.Errorf("%w: %d", quant.ErrNegativeAmount, amount)
		}
		s.book.approve(owner, spender, amount)
		b.Emit(&event.ApprovalEvent{BaseEvent: event.BaseEvent{Contract: s.addr}, Owner: owner, Spender: spender, Settlement: &amount})
		return nil
	})
}

func (s *Stable) transfer(b *engine.Block, from, to common.Address, amount quant.Micros) {
	s.book.move(from, to, amount, b.Number)
	s.book.verifyInvariant()
	b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: s.addr}, From: from, To: to, Settlement: &amount})
}

func (s *Stable) transferFrom(b *engine.Block, owner, spender, to common.Address, amount quant.Micros) {
	s.book.spend(owner, spender, to, amount, b.Number)
	s.book.verifyInvariant()
	b.Emit(&event.TransferEvent{BaseEvent: event.BaseEvent{Contract: s.addr}, From: owner, To: to, Settlement: &amount})
}
