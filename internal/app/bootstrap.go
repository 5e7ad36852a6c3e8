package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"artist_ipo/internal/deploy"
	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/impact"
	"artist_ipo/internal/infra"
	"artist_ipo/internal/infra/storage"
	"artist_ipo/internal/report"
	"artist_ipo/internal/sale"
	"artist_ipo/internal/service"
	"artist_ipo/pkg/quant"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Run statuses persisted with each RunRecord.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	// Quiet sends log output to stderr so stdout carries only the report.
	Quiet bool

	Config  *infra.Config
	Logger  *slog.Logger
	Storage *storage.Storage
	Metrics *infra.Metrics
	// Trades follows every mined receipt of the network.
	Trades *service.TradeService

	Chain *devchain.Chain
	Book  domain.AddressBook
	// Collab is bound from the address file written after deployment.
	Collab *domain.Collaborators
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath, Metrics: &infra.Metrics{}, Trades: service.NewTradeService()}
}

// Initialize loads .env, the configuration, the logger and the database.
func (b *Bootstrap) Initialize() error {
	// 1. Load .env (optional)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	// 2. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 3. Setup Logger
	logger := infra.NewLogger(cfg)
	if b.Quiet {
		logger = infra.NewConsoleLogger(cfg, os.Stderr)
	}
	slog.SetDefault(logger)
	b.Logger = logger
	slog.Info("🚀 Bootstrapping Artist IPO...", slog.String("version", cfg.App.Version))

	// 4. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	return nil
}

// StartNetwork starts a fresh development network, deploys the contract set, persists the
// address book and binds the collaborators from the persisted copy.
func (b *Bootstrap) StartNetwork(ctx context.Context) error {
	cfg := b.Config
	genesis, err := cfg.Genesis()
	if err != nil {
		return err
	}

	b.Trades.StartReceiptProcessor(ctx)
	chain, err := devchain.Start(ctx, devchain.Devnet{
		Name:     cfg.Network.Name,
		Accounts: cfg.Network.Accounts,
		Genesis:  genesis,
		DumpPath: cfg.Network.DumpPath,
		Logger:   b.Logger,
	},
		engine.WithJournal(b.Storage),
		engine.WithMetrics(b.Metrics),
		engine.WithBlockTime(cfg.Network.BlockTime),
		engine.WithReceiptHook(b.Trades.Hook()),
	)
	if err != nil {
		return fmt.Errorf("start network: %w", err)
	}
	b.Chain = chain
	slog.Info("✅ Devnet started", slog.String("network", cfg.Network.Name), slog.Int("accounts", cfg.Network.Accounts))

	params, err := b.DeployParams()
	if err != nil {
		return err
	}
	book, err := deploy.Deploy(ctx, chain, params, b.Logger)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	if err := b.Storage.SaveAddressBook(ctx, book); err != nil {
		return fmt.Errorf("save address book: %w", err)
	}
	if err := storage.WriteAddressFile(cfg.Storage.AddressesFile, book); err != nil {
		return fmt.Errorf("write %s: %w", cfg.Storage.AddressesFile, err)
	}
	slog.Info("✅ Contracts deployed", slog.Int("entries", book.Len()), slog.String("file", cfg.Storage.AddressesFile))

	// The run reads the book back the way a separate process would.
	b.Book, err = storage.ReadAddressFile(cfg.Storage.AddressesFile)
	if err != nil {
		return err
	}
	c, err := deploy.Bind(ctx, chain, b.Book)
	if err != nil {
		return err
	}
	if len(c.Buyers) > cfg.Sale.Buyers {
		c.Buyers = c.Buyers[:cfg.Sale.Buyers]
	}
	b.Collab = c
	b.Trades.UpdateReferencePrice(c.Vault.UnitPriceMicro())
	return nil
}

// DeployParams converts the configuration into deployment parameters.
func (b *Bootstrap) DeployParams() (deploy.Params, error) {
	cfg := b.Config
	p := deploy.Params{
		TokenName:   cfg.Token.Name,
		TokenSymbol: cfg.Token.Symbol,
		Cliff:       cfg.Lockup.Cliff,
		Duration:    cfg.Lockup.Duration,
		FeeBps:      cfg.Market.FeeBps,
	}
	conv := converter{}
	p.TotalSupply = conv.wei("token.total_supply", cfg.Token.TotalSupply)
	p.LockupAllocation = conv.wei("lockup.allocation", cfg.Lockup.Allocation)
	p.SaleAllocation = conv.wei("sale.allocation", cfg.Sale.Allocation)
	p.UnitPriceMicro = conv.micros("sale.unit_price", cfg.Sale.UnitPrice)
	p.WalletCap = conv.wei("sale.wallet_cap", cfg.Sale.WalletCap)
	p.DeployerFaucet = conv.micros("market.deployer_faucet", cfg.Market.DeployerFaucet)
	p.SeedTokens = conv.wei("market.seed_tokens", cfg.Market.SeedTokens)
	p.SeedSettlement = conv.micros("market.seed_settlement", cfg.Market.SeedSettlement)
	if err := conv.err(); err != nil {
		return deploy.Params{}, err
	}
	return p, nil
}

// RunnerConfig converts the configuration into a lifecycle run configuration.
func (b *Bootstrap) RunnerConfig() (report.Config, error) {
	cfg := b.Config
	conv := converter{}
	capPerTx := conv.wei("sale.cap_per_transaction", cfg.Sale.CapPerTransaction)
	prefund := conv.micros("sale.prefund", cfg.Sale.Prefund)
	notional := conv.micros("impact.total_notional", cfg.Impact.TotalNotional)
	if err := conv.err(); err != nil {
		return report.Config{}, err
	}

	mode, err := sale.ParseCapMode(cfg.Sale.CapMode)
	if err != nil {
		return report.Config{}, err
	}
	policy, err := impact.ParseRemainderPolicy(cfg.Impact.Remainder)
	if err != nil {
		return report.Config{}, err
	}
	plan, err := impact.NewPlan(notional, cfg.Impact.Steps, policy)
	if err != nil {
		return report.Config{}, err
	}

	return report.Config{
		Sale: sale.Config{
			CapPerTransaction: capPerTx,
			Mode:              mode,
			Funding:           sale.FundingPolicy{Prefund: prefund, Parallelism: cfg.Sale.FundingParallelism},
		},
		VestingAdvance: cfg.Vesting.Advance,
		Impact:         plan,
		ImpactBuyer:    cfg.Impact.BuyerIndex,
	}, nil
}

// DriveConfig converts the configuration into a fixed-price market walkthrough.
func (b *Bootstrap) DriveConfig() (report.DriveConfig, error) {
	d := b.Config.Drive
	conv := converter{}
	out := report.DriveConfig{
		IPOPurchase:    conv.wei("drive.ipo_purchase", d.IPOPurchase),
		Advance:        d.Advance,
		Price:          conv.micros("drive.secondary_price", d.SecondaryPrice),
		SeedTokens:     conv.wei("drive.seed_tokens", d.SeedTokens),
		SeedSettlement: conv.micros("drive.seed_settlement", d.SeedSettlement),
		Buy:            conv.wei("drive.buy", d.Buy),
		Sell:           conv.wei("drive.sell", d.Sell),
	}
	return out, conv.err()
}

// RecordRun persists a finished lifecycle run and returns its id.
func (b *Bootstrap) RecordRun(ctx context.Context, started time.Time, rep *report.Report, runErr error) (string, error) {
	id := uuid.NewString()
	rep.RunID = id
	rec := newRunRecord(id, "lifecycle", b.Config.Network.Name, started, runErr)
	if err := b.Storage.SaveRun(ctx, rec); err != nil {
		return id, fmt.Errorf("save run: %w", err)
	}
	if rep.Sale != nil {
		if err := b.Storage.SavePurchases(ctx, id, rep.Sale.Purchases); err != nil {
			return id, fmt.Errorf("save purchases: %w", err)
		}
	}
	if rep.Impact != nil {
		if err := b.Storage.SavePriceSamples(ctx, id, rep.Impact.Samples); err != nil {
			return id, fmt.Errorf("save price samples: %w", err)
		}
	}
	slog.Info("💾 Run recorded", slog.String("run_id", id), slog.String("status", rec.Status))
	return id, nil
}

// RecordDrive persists a finished walkthrough and returns its id.
func (b *Bootstrap) RecordDrive(ctx context.Context, started time.Time, runErr error) (string, error) {
	id := uuid.NewString()
	if err := b.Storage.SaveRun(ctx, newRunRecord(id, "drive", b.Config.Network.Name, started, runErr)); err != nil {
		return id, fmt.Errorf("save run: %w", err)
	}
	return id, nil
}

// Close releases the database.
func (b *Bootstrap) Close() error {
	if b.Storage == nil {
		return nil
	}
	return b.Storage.Close()
}

func newRunRecord(id, scenario, network string, started time.Time, runErr error) *domain.RunRecord {
	rec := &domain.RunRecord{
		ID:         id,
		Scenario:   scenario,
		Network:    network,
		Status:     StatusOK,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
	}
	return rec
}

// converter collects the first failed decimal conversion.
type converter struct {
	first error
}

func (c *converter) wei(field string, d decimal.Decimal) quant.Wei {
	w, err := quant.WeiFromDecimal(d)
	if err != nil && c.first == nil {
		c.first = &domain.ConfigError{Field: field, Err: err}
	}
	return w
}

func (c *converter) micros(field string, d decimal.Decimal) quant.Micros {
	m, err := quant.MicrosFromDecimal(d)
	if err != nil && c.first == nil {
		c.first = &domain.ConfigError{Field: field, Err: err}
	}
	return m
}

func (c *converter) err() error { return c.first }
