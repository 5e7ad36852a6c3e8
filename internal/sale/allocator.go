// Package sale drains a primary-sale allocation in capped installments across a rotating
// pool of buyers.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/infra"
	"artist_ipo/pkg/quant"
	"artist_ipo/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Phase names this component in errors.
const Phase = "sale"

// CapMode selects how the cap applies.
type CapMode string

const (
	// PerTransaction caps each purchase. A buyer revisited by the rotation may accumulate
	// more than the cap.
	PerTransaction CapMode = "per_transaction"
	// PerWallet caps what each buyer accumulates over the run. Saturated buyers are skipped.
	PerWallet CapMode = "per_wallet"
)

// ParseCapMode validates a configured mode name.
func ParseCapMode(s string) (CapMode, error) {
	switch m := CapMode(s); m {
	case PerTransaction, PerWallet:
		return m, nil
	}
	return "", &domain.ConfigError{Field: "cap_mode", Err: fmt.Errorf("unknown mode %q", s)}
}

// FundingPolicy controls how buyers get settlement currency.
type FundingPolicy struct {
	// Prefund is minted to every pool buyer before the first purchase. Zero disables it.
	Prefund quant.Micros
	// Parallelism bounds concurrent prefund requests. The chain still executes them one
	// at a time.
	Parallelism int
}

// Config parameterizes an Allocator.
type Config struct {
	CapPerTransaction quant.Wei
	Mode              CapMode
	Funding           FundingPolicy
}

// Result is the outcome of a completed sell-down.
type Result struct {
	StartRemaining quant.Wei               `json:"start_remaining"`
	EndRemaining   quant.Wei               `json:"end_remaining"`
	Purchases      []domain.PurchaseRecord `json:"purchases"`
	TotalSold      quant.Wei               `json:"total_sold"`
	TotalCost      quant.Micros            `json:"total_cost"`
	TopUps         int                     `json:"top_ups"`
	// Bought is the cumulative amount per buyer.
	Bought map[common.Address]quant.Wei `json:"bought"`
}

// Allocator runs the capped sell-down against a sale vault.
type Allocator struct {
	vault   domain.PrimarySaleVault
	stable  domain.StableLedger
	cfg     Config
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewAllocator creates an allocator. A nil logger uses slog.Default; nil metrics use
// infra.GlobalMetrics.
func NewAllocator(vault domain.PrimarySaleVault, stable domain.StableLedger, cfg Config, logger *slog.Logger, metrics *infra.Metrics) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if cfg.Mode == "" {
		cfg.Mode = PerTransaction
	}
	if cfg.Funding.Parallelism < 1 {
		cfg.Funding.Parallelism = 1
	}
	return &Allocator{
		vault:   vault,
		stable:  stable,
		cfg:     cfg,
		logger:  logger.With(slog.String("phase", Phase)),
		metrics: metrics,
	}
}

// Run sells the vault's remaining allocation to pool in rotation until nothing remains.
// Every failure aborts the run with a *domain.PhaseError naming the purchase it hit.
func (a *Allocator) Run(ctx context.Context, pool []common.Address) (*Result, error) {
	if len(pool) == 0 {
		return nil, domain.NewPhaseError(Phase, 0, &domain.ConfigError{Field: "buyers", Err: errors.New("buyer pool is empty")})
	}

	remaining, err := a.vault.Remaining(ctx)
	if err != nil {
		return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("read remaining: %w", err))
	}
	alloc := domain.Allocation{
		RemainingSupply:   remaining,
		CapPerTransaction: a.cfg.CapPerTransaction,
		UnitPriceMicro:    a.vault.UnitPriceMicro(),
	}
	if err := alloc.Validate(); err != nil {
		return nil, domain.NewPhaseError(Phase, 0, err)
	}

	a.logger.Info("sell-down starting",
		slog.String("remaining", remaining.Format()),
		slog.String("cap", alloc.CapPerTransaction.Format()),
		slog.String("cap_mode", string(a.cfg.Mode)),
		slog.String("price", alloc.UnitPriceMicro.PriceString()),
		slog.Uint64("expected_purchases", alloc.ExpectedPurchases()),
		slog.Int("buyers", len(pool)))

	if err := a.prefund(ctx, pool); err != nil {
		return nil, domain.NewPhaseError(Phase, 0, err)
	}

	res := &Result{
		StartRemaining: remaining,
		Bought:         make(map[common.Address]quant.Wei, len(pool)),
	}
	index := 0
	for iteration := 1; !alloc.RemainingSupply.IsZero(); iteration++ {
		if err := ctx.Err(); err != nil {
			return res, domain.NewPhaseError(Phase, iteration, err)
		}

		buyer, chunk, err := a.next(pool, &index, alloc, res.Bought)
		if err != nil {
			return res, domain.NewPhaseError(Phase, iteration, err)
		}

		rec, err := a.purchase(ctx, iteration, buyer, chunk, alloc.UnitPriceMicro, res)
		if err != nil {
			return res, domain.NewPhaseError(Phase, iteration, err)
		}

		after, err := a.vault.Remaining(ctx)
		if err != nil {
			return res, domain.NewPhaseError(Phase, iteration, fmt.Errorf("read remaining: %w", err))
		}
		if !after.Lt(alloc.RemainingSupply) {
			return res, domain.NewPhaseError(Phase, iteration,
				fmt.Errorf("%w: vault remaining did not decrease (%s -> %s)", domain.ErrPurchaseRejected, alloc.RemainingSupply, after))
		}
		alloc.RemainingSupply = after

		res.Purchases = append(res.Purchases, rec)
		if res.TotalSold, err = res.TotalSold.Add(rec.AmountAsset); err != nil {
			return res, domain.NewPhaseError(Phase, iteration, err)
		}
		res.TotalCost = quant.Micros(safe.SafeAdd(int64(res.TotalCost), int64(rec.CostSettlement)))
		bought, err := res.Bought[buyer].Add(rec.AmountAsset)
		if err != nil {
			return res, domain.NewPhaseError(Phase, iteration, err)
		}
		res.Bought[buyer] = bought
		a.metrics.RecordPurchase()

		a.logger.Info("purchase",
			slog.Int("seq", rec.Seq),
			slog.String("buyer", buyer.Hex()),
			slog.String("amount", rec.AmountAsset.Format()),
			slog.String("cost", rec.CostSettlement.USDString()),
			slog.String("remaining", after.Format()))
	}

	res.EndRemaining = alloc.RemainingSupply
	a.logger.Info("sell-down complete",
		slog.Int("purchases", len(res.Purchases)),
		slog.String("sold", res.TotalSold.Format()),
		slog.String("proceeds", res.TotalCost.USDString()))
	return res, nil
}

// next picks the buyer and chunk for one purchase and advances the rotation.
func (a *Allocator) next(pool []common.Address, index *int, alloc domain.Allocation, bought map[common.Address]quant.Wei) (common.Address, quant.Wei, error) {
	capacity := alloc.CapPerTransaction
	buyer := pool[*index%len(pool)]

	if a.cfg.Mode == PerWallet {
		found := false
		for skipped := 0; skipped < len(pool); skipped++ {
			buyer = pool[*index%len(pool)]
			if bought[buyer].Lt(alloc.CapPerTransaction) {
				found = true
				break
			}
			*index++
		}
		if !found {
			return common.Address{}, quant.Wei{}, fmt.Errorf("%w: every buyer holds the %s cap with %s unsold",
				domain.ErrCapViolation, alloc.CapPerTransaction.Format(), alloc.RemainingSupply.Format())
		}
		capacity, _ = alloc.CapPerTransaction.Sub(bought[buyer])
	}

	chunk := quant.MinWei(capacity, alloc.RemainingSupply)
	if chunk.Gt(alloc.CapPerTransaction) {
		return common.Address{}, quant.Wei{}, fmt.Errorf("%w: chunk %s exceeds cap %s", domain.ErrCapViolation, chunk, alloc.CapPerTransaction)
	}
	if chunk.IsZero() {
		return common.Address{}, quant.Wei{}, fmt.Errorf("%w: empty chunk", domain.ErrCapViolation)
	}
	*index++
	return buyer, chunk, nil
}

// purchase funds the buyer if needed, approves the cost and buys chunk.
func (a *Allocator) purchase(ctx context.Context, seq int, buyer common.Address, chunk quant.Wei, price quant.Micros, res *Result) (domain.PurchaseRecord, error) {
	cost, err := quant.ToSettlementCost(chunk, price)
	if err != nil {
		return domain.PurchaseRecord{}, err
	}

	balance, err := a.stable.BalanceOf(ctx, buyer)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("%w: read balance of %s: %w", domain.ErrFundingFailed, buyer.Hex(), err)
	}
	b := domain.Buyer{Identity: buyer, FundingBalance: balance}
	if b.FundingBalance < cost {
		shortfall := cost - b.FundingBalance
		if err := a.stable.Faucet(ctx, buyer, shortfall); err != nil {
			return domain.PurchaseRecord{}, fmt.Errorf("%w: top up %s by %s: %w", domain.ErrFundingFailed, buyer.Hex(), shortfall.USDString(), err)
		}
		res.TopUps++
		a.metrics.RecordTopUp()
		a.logger.Debug("buyer topped up", slog.String("buyer", buyer.Hex()), slog.String("amount", shortfall.USDString()))
	}

	if err := a.stable.Approve(ctx, buyer, a.vault.Address(), cost); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("%w: approve %s: %w", domain.ErrPurchaseRejected, cost.USDString(), err)
	}
	if err := a.vault.Buy(ctx, buyer, chunk); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("%w: buy %s for %s: %w", domain.ErrPurchaseRejected, chunk.Format(), buyer.Hex(), err)
	}

	return domain.PurchaseRecord{Seq: seq, Buyer: buyer, AmountAsset: chunk, CostSettlement: cost}, nil
}

// prefund mints the configured amount to every distinct buyer, several requests in flight.
func (a *Allocator) prefund(ctx context.Context, pool []common.Address) error {
	if a.cfg.Funding.Prefund <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Funding.Parallelism)
	seen := make(map[common.Address]bool, len(pool))
	for _, buyer := range pool {
		if seen[buyer] {
			continue
		}
		seen[buyer] = true
		buyer := buyer
		g.Go(func() error {
			if err := a.stable.Faucet(gctx, buyer, a.cfg.Funding.Prefund); err != nil {
				return fmt.Errorf("%w: prefund %s: %w", domain.ErrFundingFailed, buyer.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("buyers prefunded", slog.Int("buyers", len(seen)), slog.String("each", a.cfg.Funding.Prefund.USDString()))
	return nil
}
