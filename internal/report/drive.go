package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/infra"
	"artist_ipo/internal/vesting"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// DrivePhase names the fixed-price market walkthrough in errors.
const DrivePhase = "drive"

// DriveConfig parameterizes RunDrive.
type DriveConfig struct {
	IPOPurchase quant.Wei
	Advance     time.Duration
	// Price is set on the fixed-price market by its owner.
	Price          quant.Micros
	SeedTokens     quant.Wei
	SeedSettlement quant.Micros
	Buy            quant.Wei
	Sell           quant.Wei
}

// DriveReport is what a walkthrough of the fixed-price market observed.
type DriveReport struct {
	Trader  common.Address  `json:"trader"`
	IPOCost quant.Micros    `json:"ipo_cost"`
	Vesting *vesting.Result `json:"vesting,omitempty"`

	Price        quant.Micros `json:"price"`
	BuyCost      quant.Micros `json:"buy_cost"`
	SellProceeds quant.Micros `json:"sell_proceeds"`

	MarketAsset      quant.Wei    `json:"market_asset"`
	MarketSettlement quant.Micros `json:"market_settlement"`
	TraderAsset      quant.Wei    `json:"trader_asset"`
	TraderSettlement quant.Micros `json:"trader_settlement"`

	Err string `json:"error,omitempty"`
}

// RunDrive buys from the primary sale as the first pool buyer, releases vested tokens to the
// artist, seeds the fixed-price market from the deployer and the artist, then buys and sells
// against it. Steps number from 1 in errors.
func RunDrive(ctx context.Context, c *domain.Collaborators, cfg DriveConfig, logger *slog.Logger, metrics *infra.Metrics) (*DriveReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	logger = logger.With(slog.String("phase", DrivePhase))

	rep := &DriveReport{Price: cfg.Price}
	step := 0
	fail := func(err error) (*DriveReport, error) {
		metrics.RecordError()
		pe := domain.NewPhaseError(DrivePhase, step, err)
		rep.Err = pe.Error()
		return rep, pe
	}

	if len(c.Buyers) == 0 {
		return fail(&domain.ConfigError{Field: "sale.buyers", Err: fmt.Errorf("no buyer accounts")})
	}
	you := c.Buyers[0]
	rep.Trader = you

	// 1: primary purchase at the vault's price
	step++
	cost, err := quant.ToSettlementCost(cfg.IPOPurchase, c.Vault.UnitPriceMicro())
	if err != nil {
		return fail(err)
	}
	if err := fundAndApprove(ctx, c.Stable, you, c.Vault.Address(), cost, metrics); err != nil {
		return fail(err)
	}
	if err := c.Vault.Buy(ctx, you, cfg.IPOPurchase); err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrPurchaseRejected, err))
	}
	metrics.RecordPurchase()
	rep.IPOCost = cost
	logger.Info("ipo purchase", slog.String("buyer", you.Hex()), slog.String("amount", cfg.IPOPurchase.Format()), slog.String("cost", cost.USDString()))

	// 2: vesting release
	step++
	sched := vesting.NewScheduler(c.Lockup, c.Clock, c.Asset, logger, metrics)
	if rep.Vesting, err = sched.AdvanceAndRelease(ctx, c.Artist, cfg.Advance); err != nil {
		return fail(err)
	}

	// 3: owner prices and funds the market
	step++
	if err := c.Secondary.SetPrice(ctx, c.Deployer, cfg.Price); err != nil {
		return fail(fmt.Errorf("set price: %w", err))
	}
	if cfg.SeedSettlement > 0 {
		if err := c.Stable.Faucet(ctx, c.Deployer, cfg.SeedSettlement); err != nil {
			return fail(fmt.Errorf("%w: %w", domain.ErrFundingFailed, err))
		}
		if err := c.Stable.Transfer(ctx, c.Deployer, c.Secondary.Address(), cfg.SeedSettlement); err != nil {
			return fail(fmt.Errorf("seed settlement: %w", err))
		}
	}

	// 4: artist seeds inventory from what was released
	step++
	if rep.Vesting.Released.Lt(cfg.SeedTokens) {
		return fail(fmt.Errorf("artist released %s, market seed needs %s", rep.Vesting.Released.Format(), cfg.SeedTokens.Format()))
	}
	if !cfg.SeedTokens.IsZero() {
		if err := c.Asset.Transfer(ctx, c.Artist, c.Secondary.Address(), cfg.SeedTokens); err != nil {
			return fail(fmt.Errorf("seed inventory: %w", err))
		}
	}

	// 5: buy
	step++
	if rep.BuyCost, err = quant.ToSettlementCost(cfg.Buy, cfg.Price); err != nil {
		return fail(err)
	}
	if err := fundAndApprove(ctx, c.Stable, you, c.Secondary.Address(), rep.BuyCost, metrics); err != nil {
		return fail(err)
	}
	if err := c.Secondary.BuyTokens(ctx, you, cfg.Buy); err != nil {
		return fail(fmt.Errorf("secondary buy: %w", err))
	}
	logger.Info("secondary buy", slog.String("amount", cfg.Buy.Format()), slog.String("cost", rep.BuyCost.USDString()))

	// 6: sell
	step++
	if rep.SellProceeds, err = quant.ToSettlementCost(cfg.Sell, cfg.Price); err != nil {
		return fail(err)
	}
	if err := c.Asset.Approve(ctx, you, c.Secondary.Address(), cfg.Sell); err != nil {
		return fail(fmt.Errorf("approve sell: %w", err))
	}
	if err := c.Secondary.SellTokens(ctx, you, cfg.Sell); err != nil {
		return fail(fmt.Errorf("secondary sell: %w", err))
	}
	logger.Info("secondary sell", slog.String("amount", cfg.Sell.Format()), slog.String("proceeds", rep.SellProceeds.USDString()))

	// 7: balances
	step++
	if rep.MarketAsset, rep.MarketSettlement, err = c.Secondary.Balances(ctx); err != nil {
		return fail(err)
	}
	if rep.TraderAsset, err = c.Asset.BalanceOf(ctx, you); err != nil {
		return fail(err)
	}
	if rep.TraderSettlement, err = c.Stable.BalanceOf(ctx, you); err != nil {
		return fail(err)
	}
	return rep, nil
}

// fundAndApprove tops owner up to amount and approves spender for it.
func fundAndApprove(ctx context.Context, stable domain.StableLedger, owner, spender common.Address, amount quant.Micros, metrics *infra.Metrics) error {
	bal, err := stable.BalanceOf(ctx, owner)
	if err != nil {
		return err
	}
	if bal < amount {
		if err := stable.Faucet(ctx, owner, amount-bal); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrFundingFailed, err)
		}
		metrics.RecordTopUp()
	}
	if err := stable.Approve(ctx, owner, spender, amount); err != nil {
		return fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	return nil
}

// RenderDrive prints a walkthrough report.
func RenderDrive(w io.Writer, rep *DriveReport, symbol string) error {
	ew := &errWriter{w: w}
	ew.printf("TRADER: %s\n", rep.Trader.Hex())
	ew.printf("IPO BUY COST: %s\n", rep.IPOCost.USDString())
	if v := rep.Vesting; v != nil {
		ew.printf("ARTIST RELEASED: %s %s\n", v.Released.Format(), symbol)
	}
	ew.printf("SECONDARY PRICE: $%s\n", rep.Price.PriceString())
	ew.printf("SECONDARY BUY COST: %s, SELL PROCEEDS: %s\n", rep.BuyCost.USDString(), rep.SellProceeds.USDString())
	ew.printf("SECONDARY BALANCES: %s %s, %s\n", rep.MarketAsset.Format(), symbol, rep.MarketSettlement.USDString())
	ew.printf("TRADER BALANCES: %s %s, %s\n", rep.TraderAsset.Format(), symbol, rep.TraderSettlement.USDString())
	if rep.Err != "" {
		ew.printf("ERROR: %s\n", rep.Err)
	}
	return ew.err
}
