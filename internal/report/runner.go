// Package report sequences a full lifecycle run and renders what it observed.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/impact"
	"artist_ipo/internal/infra"
	"artist_ipo/internal/sale"
	"artist_ipo/internal/vesting"
)

// Config parameterizes a lifecycle run.
type Config struct {
	Sale sale.Config
	// VestingAdvance is how far the clock moves before the release.
	VestingAdvance time.Duration
	Impact         impact.Plan
	// ImpactBuyer indexes Collaborators.Buyers.
	ImpactBuyer int
}

// Runner runs sale, then vesting, then price impact against one set of collaborators.
type Runner struct {
	c       *domain.Collaborators
	cfg     Config
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewRunner creates a runner.
func NewRunner(c *domain.Collaborators, cfg Config, logger *slog.Logger, metrics *infra.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Runner{c: c, cfg: cfg, logger: logger, metrics: metrics}
}

// Run executes the three phases in order. On failure the partial report is returned with
// the error; phases that completed stay in it.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{CapMode: r.cfg.Sale.Mode, Cap: r.cfg.Sale.CapPerTransaction, Plan: r.cfg.Impact}
	if rep.CapMode == "" {
		rep.CapMode = sale.PerTransaction
	}
	fail := func(err error) (*Report, error) {
		r.metrics.RecordError()
		rep.Err = err.Error()
		return rep, err
	}

	if r.cfg.ImpactBuyer < 0 || r.cfg.ImpactBuyer >= len(r.c.Buyers) {
		return fail(&domain.ConfigError{Field: "impact.buyer_index", Err: fmt.Errorf("%d outside pool of %d", r.cfg.ImpactBuyer, len(r.c.Buyers))})
	}

	snap, err := r.snapshot(ctx)
	if err != nil {
		return fail(domain.NewPhaseError("snapshot", 0, err))
	}
	rep.Allocation = snap
	rep.UnitPriceMicro = r.c.Vault.UnitPriceMicro()
	r.logger.Info("allocation",
		slog.String("total_supply", snap.TotalSupply.Format()),
		slog.String("locked", snap.Locked.Format()),
		slog.String("for_sale", snap.ForSale.Format()))

	// Phase 1: primary sale
	if rep.TreasuryBefore, err = r.c.Stable.BalanceOf(ctx, r.c.Vault.Treasury()); err != nil {
		return fail(domain.NewPhaseError(sale.Phase, 0, err))
	}
	allocator := sale.NewAllocator(r.c.Vault, r.c.Stable, r.cfg.Sale, r.logger, r.metrics)
	rep.Sale, err = allocator.Run(ctx, r.c.Buyers)
	if err != nil {
		return fail(err)
	}
	if rep.TreasuryAfterSale, err = r.c.Stable.BalanceOf(ctx, r.c.Vault.Treasury()); err != nil {
		return fail(domain.NewPhaseError(sale.Phase, 0, err))
	}

	// Phase 2: vesting
	scheduler := vesting.NewScheduler(r.c.Lockup, r.c.Clock, r.c.Asset, r.logger, r.metrics)
	rep.Vesting, err = scheduler.AdvanceAndRelease(ctx, r.c.Artist, r.cfg.VestingAdvance)
	if err != nil {
		return fail(err)
	}

	// Phase 3: secondary price impact
	sim := impact.NewSimulator(r.c.Market, r.c.Stable, r.logger, r.metrics)
	rep.Impact, err = sim.Run(ctx, r.c.Buyers[r.cfg.ImpactBuyer], r.cfg.Impact)
	if err != nil {
		return fail(err)
	}

	rep.finish()
	return rep, nil
}

func (r *Runner) snapshot(ctx context.Context) (AllocationSnapshot, error) {
	var s AllocationSnapshot
	var err error
	if s.TotalSupply, err = r.c.Asset.TotalSupply(ctx); err != nil {
		return s, err
	}
	if s.Locked, err = r.c.Asset.BalanceOf(ctx, r.c.Lockup.Address()); err != nil {
		return s, err
	}
	if s.ForSale, err = r.c.Asset.BalanceOf(ctx, r.c.Vault.Address()); err != nil {
		return s, err
	}
	if s.FreeFloat, err = s.TotalSupply.Sub(s.Locked); err != nil {
		return s, fmt.Errorf("free float: %w", err)
	}
	return s, nil
}

// finish derives the summary figures once every phase completed.
func (rep *Report) finish() {
	rep.FinalSpot = rep.Impact.FinalSpot()
	rep.FinalMarket = rep.Impact.Final()
	rep.MarketCap = rep.Allocation.FreeFloat.Decimal().Mul(rep.FinalSpot.Decimal())
}
