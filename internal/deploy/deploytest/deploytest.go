// Package deploytest starts a deployed development network for tests.
package deploytest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"artist_ipo/internal/deploy"
	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/infra"
	"artist_ipo/pkg/quant"
)

// Genesis is the timestamp of block zero.
var Genesis = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Params returns the reference deployment: 1M supply, 400k locked, 600k for sale at $0.15
// with a 50k wallet cap, market seeded with 50k tokens and $7,500.
func Params() deploy.Params {
	return deploy.Params{
		TokenName:        "Weasel Demo Artist",
		TokenSymbol:      "WEAZ",
		TotalSupply:      quant.Tokens(1_000_000),
		LockupAllocation: quant.Tokens(400_000),
		Cliff:            30 * 24 * time.Hour,
		Duration:         180 * 24 * time.Hour,
		SaleAllocation:   quant.Tokens(600_000),
		UnitPriceMicro:   150_000,
		WalletCap:        quant.Tokens(50_000),
		FeeBps:           30,
		DeployerFaucet:   quant.USD(6_000_000),
		SeedTokens:       quant.Tokens(50_000),
		SeedSettlement:   quant.USD(7_500),
	}
}

// Env is a deployed network.
type Env struct {
	Chain   *devchain.Chain
	Book    domain.AddressBook
	C       *domain.Collaborators
	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// New deploys p on a fresh network with the given number of accounts. The network stops when
// the test ends.
func New(t testing.TB, accounts int, p deploy.Params, opts ...engine.Option) *Env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	metrics := &infra.Metrics{}
	chain, err := devchain.Start(ctx, devchain.Devnet{
		Name:     "testnet",
		Accounts: accounts,
		Genesis:  Genesis,
		Logger:   logger,
	}, append([]engine.Option{engine.WithMetrics(metrics)}, opts...)...)
	if err != nil {
		t.Fatalf("start devnet: %v", err)
	}

	book, err := deploy.Deploy(ctx, chain, p, logger)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	c, err := deploy.Bind(ctx, chain, book)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	return &Env{Chain: chain, Book: book, C: c, Metrics: metrics, Logger: logger}
}
