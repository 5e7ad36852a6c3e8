package devchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Revert reasons. They reach callers wrapped in *engine.RevertError.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAmount            = errors.New("zero amount")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrPaused                = errors.New("sale paused")
	ErrExceedsRemaining      = errors.New("amount exceeds remaining allocation")
	ErrWalletCap             = errors.New("wallet cap exceeded")
	ErrNotBeneficiary        = errors.New("caller is not the beneficiary")
	ErrNothingToRelease      = errors.New("nothing to release")
	ErrNoLiquidity           = errors.New("no liquidity")
	ErrPriceUnset            = errors.New("price not set")
)

// contract is a deployed piece of chain state.
type contract interface {
	Address() common.Address
	kind() string
	snapshot() any
}

// Chain is an in-process development network. All state lives on the sequencer goroutine:
// contract bodies only run inside Submit/Call closures.
type Chain struct {
	seq       *engine.Sequencer
	accounts  []Account
	nonces    map[common.Address]uint64
	contracts map[common.Address]contract
	logger    *slog.Logger
}

// NewChain wraps a sequencer. The sequencer's Run loop must be started by the caller.
func NewChain(seq *engine.Sequencer, accounts []Account, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		seq:       seq,
		accounts:  accounts,
		nonces:    make(map[common.Address]uint64),
		contracts: make(map[common.Address]contract),
		logger:    logger.With(slog.String("component", "devchain")),
	}
}

// Devnet describes a development network to start.
type Devnet struct {
	Name     string
	Accounts int
	Genesis  time.Time
	DumpPath string // post-mortem state dump; empty keeps the sequencer default
	Logger   *slog.Logger
}

// Start derives the signers, starts a sequencer loop bound to ctx and returns the chain.
// Extra options (journal, metrics, block time) are passed to the sequencer.
func Start(ctx context.Context, net Devnet, opts ...engine.Option) (*Chain, error) {
	accounts, err := DeriveAccounts(net.Name, net.Accounts)
	if err != nil {
		return nil, err
	}

	var chain *Chain
	if net.DumpPath != "" {
		opts = append(opts, engine.WithStateDump(net.DumpPath, func() any { return chain.Snapshot() }))
	}
	seq := engine.NewSequencer(64, net.Genesis, opts...)
	chain = NewChain(seq, accounts, net.Logger)
	go seq.Run(ctx)
	return chain, nil
}

// Accounts returns the development signers.
func (c *Chain) Accounts() []Account {
	return c.accounts
}

// Now returns the timestamp of the latest block.
func (c *Chain) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := c.seq.Call(ctx, "eth_getBlockByNumber", func(b *engine.Block) error {
		now = b.Time
		return nil
	})
	return now, err
}

// IncreaseTime shifts the next block's timestamp forward.
func (c *Chain) IncreaseTime(ctx context.Context, d time.Duration) error {
	return c.seq.IncreaseTime(ctx, d)
}

// Mine mines an empty block.
func (c *Chain) Mine(ctx context.Context) error {
	_, err := c.seq.Mine(ctx)
	return err
}

// Snapshot returns every contract's state. It must run on the sequencer goroutine
// (the state dump hook) or after the sequencer stopped.
func (c *Chain) Snapshot() any {
	out := make(map[string]any, len(c.contracts))
	for addr, k := range c.contracts {
		out[k.kind()+"@"+addr.Hex()] = k.snapshot()
	}
	return out
}

func (c *Chain) submit(ctx context.Context, from common.Address, method string, body func(b *engine.Block) error) error {
	r, err := c.seq.Submit(ctx, from, method, func(b *engine.Block) error {
		c.nonces[from]++
		return body(b)
	})
	if err != nil {
		c.logger.Debug("transaction reverted",
			slog.String("method", method),
			slog.String("from", from.Hex()),
			slog.Uint64("block", r.Block),
			slog.Any("error", err))
		return err
	}
	return nil
}

func (c *Chain) view(ctx context.Context, method string, body func(b *engine.Block) error) error {
	return c.seq.Call(ctx, method, body)
}

// deploy mines a creation transaction. The address follows the CREATE rule.
func (c *Chain) deploy(ctx context.Context, deployer common.Address, name string, build func(addr common.Address, b *engine.Block) (contract, error)) (contract, error) {
	var created contract
	_, err := c.seq.Submit(ctx, deployer, "deploy."+name, func(b *engine.Block) error {
		addr := crypto.CreateAddress(deployer, c.nonces[deployer])
		c.nonces[deployer]++
		k, err := build(addr, b)
		if err != nil {
			return err
		}
		c.contracts[addr] = k
		b.Emit(&event.DeployedEvent{BaseEvent: event.BaseEvent{Contract: addr}, Name: name, Deployer: deployer})
		created = k
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", name, err)
	}
	c.logger.Info("contract deployed", slog.String("name", name), slog.String("address", created.Address().Hex()))
	return created, nil
}

func lookup[T contract](c *Chain, ctx context.Context, addr common.Address, want string) (T, error) {
	var out T
	err := c.view(ctx, "eth_getCode", func(*engine.Block) error {
		k, ok := c.contracts[addr]
		if !ok {
			return fmt.Errorf("%w: no contract at %s", domain.ErrUnknownContract, addr.Hex())
		}
		t, ok := k.(T)
		if !ok {
			return fmt.Errorf("%w: %s is a %s, not a %s", domain.ErrUnknownContract, addr.Hex(), k.kind(), want)
		}
		out = t
		return nil
	})
	return out, err
}

var (
	_ domain.Clock              = (*Chain)(nil)
	_ domain.AssetLedger        = (*Token)(nil)
	_ domain.StableLedger       = (*Stable)(nil)
	_ domain.PrimarySaleVault   = (*SaleVault)(nil)
	_ domain.SecondaryMarket    = (*AMM)(nil)
	_ domain.SecondaryMarketAlt = (*FixedMarket)(nil)
	_ domain.LockupVault        = (*VestingVault)(nil)
)
