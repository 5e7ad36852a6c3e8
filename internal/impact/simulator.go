// Package impact applies a fixed settlement notional to a constant-product market in equal
// steps and samples the spot price after each.
package impact

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
)

// Phase names this component in errors.
const Phase = "impact"

// RemainderPolicy decides what happens when the notional does not split evenly.
type RemainderPolicy string

const (
	// Reject fails with domain.ErrIndivisibleNotional.
	Reject RemainderPolicy = "reject"
	// Carry adds the remainder to the final step.
	Carry RemainderPolicy = "carry"
)

// ParseRemainderPolicy validates a configured policy name.
func ParseRemainderPolicy(s string) (RemainderPolicy, error) {
	switch p := RemainderPolicy(s); p {
	case Reject, Carry:
		return p, nil
	}
	return "", &domain.ConfigError{Field: "remainder", Err: fmt.Errorf("unknown policy %q", s)}
}

// Plan is the per-step notional of a run.
type Plan struct {
	Total quant.Micros
	Steps []quant.Micros
}

// NewPlan splits total into steps installments of total/steps.
func NewPlan(total quant.Micros, steps int, policy RemainderPolicy) (Plan, error) {
	if steps < 1 {
		return Plan{}, &domain.ConfigError{Field: "steps", Err: fmt.Errorf("must be positive, got %d", steps)}
	}
	if total <= 0 {
		return Plan{}, &domain.ConfigError{Field: "total_notional", Err: errors.New("must be positive")}
	}
	per := total / quant.Micros(steps)
	rem := total % quant.Micros(steps)
	if per == 0 {
		return Plan{}, fmt.Errorf("%w: %s is less than one micro-unit per step over %d steps", domain.ErrIndivisibleNotional, total.USDString(), steps)
	}
	if rem != 0 && policy != Carry {
		return Plan{}, fmt.Errorf("%w: %d micro-units do not split into %d equal steps (remainder %d)", domain.ErrIndivisibleNotional, total, steps, rem)
	}

	p := Plan{Total: total, Steps: make([]quant.Micros, steps)}
	for i := range p.Steps {
		p.Steps[i] = per
	}
	p.Steps[steps-1] += rem
	return p, nil
}

// Result is the observed price path of a run.
type Result struct {
	Buyer         common.Address       `json:"buyer"`
	Start         domain.MarketState   `json:"start"`
	StartSpot     quant.Micros         `json:"start_spot"`
	Samples       []domain.PriceSample `json:"samples"`
	TotalSpent    quant.Micros         `json:"total_spent"`
	TotalReceived quant.Wei            `json:"total_received"`
	TopUps        int                  `json:"top_ups"`
}

// Final returns the market after the last step, or the start state when no step ran.
func (r *Result) Final() domain.MarketState {
	if len(r.Samples) == 0 {
		return r.Start
	}
	return r.Samples[len(r.Samples)-1].Market
}

// FinalSpot returns the spot price after the last step.
func (r *Result) FinalSpot() quant.Micros {
	if len(r.Samples) == 0 {
		return r.StartSpot
	}
	return r.Samples[len(r.Samples)-1].Spot
}

// Monotonic reports whether the sampled spot price never decreased, starting from the
// price before the first step.
func (r *Result) Monotonic() bool {
	prev := r.StartSpot
	for _, s := range r.Samples {
		if s.Spot < prev {
			return false
		}
		prev = s.Spot
	}
	return true
}

// Simulator drives demand steps against a market.
type Simulator struct {
	market  domain.SecondaryMarket
	stable  domain.StableLedger
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewSimulator creates a simulator. A nil logger uses slog.Default; nil metrics use
// infra.GlobalMetrics.
func NewSimulator(market domain.SecondaryMarket, stable domain.StableLedger, logger *slog.Logger, metrics *infra.Metrics) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Simulator{market: market, stable: stable, logger: logger.With(slog.String("phase", Phase)), metrics: metrics}
}

// Run executes plan with buyer as the only demand. Steps already executed stay committed
// when a later step fails.
func (s *Simulator) Run(ctx context.Context, buyer common.Address, plan Plan) (*Result, error) {
	start, err := s.market.Reserves(ctx)
	if err != nil {
		return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("read reserves: %w", err))
	}
	spot, err := s.market.SpotPriceMicro(ctx)
	if err != nil {
		return nil, domain.NewPhaseError(Phase, 0, fmt.Errorf("read spot price: %w", err))
	}
	res := &Result{Buyer: buyer, Start: start, StartSpot: spot}
	s.logger.Info("price impact starting",
		slog.String("spot", spot.PriceString()),
		slog.String("notional", plan.Total.USDString()),
		slog.Int("steps", len(plan.Steps)))

	var cumulative quant.Micros
	for i, notional := range plan.Steps {
		step := i + 1
		if err := ctx.Err(); err != nil {
			return res, domain.NewPhaseError(Phase, step, err)
		}

		if err := s.fund(ctx, buyer, notional, res); err != nil {
			return res, domain.NewPhaseError(Phase, step, err)
		}
		if err := s.stable.Approve(ctx, buyer, s.market.Address(), notional); err != nil {
			return res, domain.NewPhaseError(Phase, step, fmt.Errorf("%w: approve %s: %w", domain.ErrPurchaseRejected, notional.USDString(), err))
		}
		received, err := s.market.BuyTokens(ctx, buyer, notional)
		if err != nil {
			return res, domain.NewPhaseError(Phase, step, fmt.Errorf("%w: buy for %s: %w", domain.ErrPurchaseRejected, notional.USDString(), err))
		}

		market, err := s.market.Reserves(ctx)
		if err != nil {
			return res, domain.NewPhaseError(Phase, step, fmt.Errorf("read reserves: %w", err))
		}
		spot, err := s.market.SpotPriceMicro(ctx)
		if err != nil {
			return res, domain.NewPhaseError(Phase, step, fmt.Errorf("read spot price: %w", err))
		}

		cumulative = quant.Micros(safe.SafeAdd(int64(cumulative), int64(notional)))
		res.Samples = append(res.Samples, domain.PriceSample{
			Step:       step,
			Notional:   notional,
			Cumulative: cumulative,
			Received:   received,
			Spot:       spot,
			Market:     market,
		})
		res.TotalSpent = cumulative
		if res.TotalReceived, err = res.TotalReceived.Add(received); err != nil {
			return res, domain.NewPhaseError(Phase, step, err)
		}
		s.metrics.RecordImpactStep()

		s.logger.Info("secondary buy",
			slog.Int("step", step),
			slog.String("cumulative", cumulative.USDString()),
			slog.String("received", received.Format()),
			slog.String("spot", spot.PriceString()))
	}

	if !res.Monotonic() {
		s.logger.Warn("spot price decreased during one-directional demand")
	}
	return res, nil
}

// fund tops the buyer up to at least amount.
func (s *Simulator) fund(ctx context.Context, buyer common.Address, amount quant.Micros, res *Result) error {
	balance, err := s.stable.BalanceOf(ctx, buyer)
	if err != nil {
		return fmt.Errorf("%w: read balance: %w", domain.ErrFundingFailed, err)
	}
	if balance >= amount {
		return nil
	}
	if err := s.stable.Faucet(ctx, buyer, amount-balance); err != nil {
		return fmt.Errorf("%w: top up %s: %w", domain.ErrFundingFailed, (amount - balance).USDString(), err)
	}
	res.TopUps++
	s.metrics.RecordTopUp()
	return nil
}
