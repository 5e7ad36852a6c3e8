// Package vesting advances the clock past a lockup cliff and releases what has vested.
package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/infra"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Phase names this component in errors.
const Phase = "vesting"

// Result is the observed outcome of one release.
type Result struct {
	Before             domain.VestingSchedule `json:"before"`
	After              domain.VestingSchedule `json:"after"`
	AdvancedBy         time.Duration          `json:"advanced_by"`
	At                 time.Time              `json:"at"` // time of the release block, or of the head when refused
	Released           quant.Wei              `json:"released"`
	BeneficiaryBalance quant.Wei              `json:"beneficiary_balance"`
}

// Scheduler triggers releases on a lockup vault.
type Scheduler struct {
	vault   domain.LockupVault
	clock   domain.Clock
	asset   domain.AssetLedger
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewScheduler creates a scheduler. asset is used to report the beneficiary's balance.
func NewScheduler(vault domain.LockupVault, clock domain.Clock, asset domain.AssetLedger, logger *slog.Logger, metrics *infra.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Scheduler{vault: vault, clock: clock, asset: asset, logger: logger.With(slog.String("phase", Phase)), metrics: metrics}
}

// AdvanceAndRelease moves the clock forward by d, commits it with an empty block, then
// releases as caller.
func (s *Scheduler) AdvanceAndRelease(ctx context.Context, caller common.Address, d time.Duration) (*Result, error) {
	if d < 0 {
		return nil, domain.NewPhaseError(Phase, 0, &domain.ConfigError{Field: "advance", Err: fmt.Errorf("negative duration %s", d)})
	}
	if d > 0 {
		if err := s.clock.IncreaseTime(ctx, d); err != nil {
			return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("advance clock: %w", err))
		}
		if err := s.clock.Mine(ctx); err != nil {
			return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("mine: %w", err))
		}
		s.logger.Info("clock advanced", slog.Duration("by", d))
	}
	res, err := s.Release(ctx, caller)
	if res != nil {
		res.AdvancedBy = d
	}
	return res, err
}

// Release asks the vault to pay out as caller and reports what moved. A refused release
// fails with domain.ErrReleaseRejected.
func (s *Scheduler) Release(ctx context.Context, caller common.Address) (*Result, error) {
	before, err := s.vault.Schedule(ctx)
	if err != nil {
		return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("read schedule: %w", err))
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("read clock: %w", err))
	}
	res := &Result{Before: before, At: now}

	released, err := s.vault.Release(ctx, caller)
	if err != nil {
		s.logger.Warn("release rejected",
			slog.Time("at", now),
			slog.Time("cliff_ends", before.CliffEnds()),
			slog.Any("error", err))
		return res, domain.NewPhaseError(Phase, 0, fmt.Errorf("%w: %w", domain.ErrReleaseRejected, err))
	}

	after, err := s.vault.Schedule(ctx)
	if err != nil {
		return res, domain.NewPhaseError(Phase, 0, fmt.Errorf("read schedule: %w", err))
	}
	res.After = after
	res.Released = released
	// automine: the head is the release block
	if res.At, err = s.clock.Now(ctx); err != nil {
		return res, domain.NewPhaseError(Phase, 0, fmt.Errorf("read clock: %w", err))
	}

	if after.Released.Lt(before.Released) || after.Released.Gt(after.Total) {
		return res, domain.NewPhaseError(Phase, 0, fmt.Errorf("%w: released went %s -> %s of %s",
			domain.ErrReleaseRejected, before.Released, after.Released, after.Total))
	}

	if s.asset != nil {
		if res.BeneficiaryBalance, err = s.asset.BalanceOf(ctx, after.Beneficiary); err != nil {
			return res, domain.NewPhaseError(Phase, 0, fmt.Errorf("read beneficiary balance: %w", err))
		}
	}
	s.metrics.RecordRelease()

	s.logger.Info("released",
		slog.String("beneficiary", after.Beneficiary.Hex()),
		slog.String("amount", released.Format()),
		slog.String("released_total", after.Released.Format()),
		slog.String("vested_total", after.Total.Format()))
	return res, nil
}
