package report

import (
	"fmt"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/impact"
	"artist_ipo/internal/sale"
	"artist_ipo/internal/vesting"
	"artist_ipo/pkg/quant"

	"github.com/shopspring/decimal"
)

// AllocationSnapshot is the supply split observed before the sale.
type AllocationSnapshot struct {
	TotalSupply quant.Wei `json:"total_supply"`
	Locked      quant.Wei `json:"locked"`
	ForSale     quant.Wei `json:"for_sale"`
	// FreeFloat is everything outside the lockup.
	FreeFloat quant.Wei `json:"free_float"`
}

// Report is everything a lifecycle run observed.
type Report struct {
	RunID   string `json:"run_id,omitempty"`
	Network string `json:"network,omitempty"`

	Allocation     AllocationSnapshot `json:"allocation"`
	UnitPriceMicro quant.Micros       `json:"unit_price"`
	CapMode        sale.CapMode       `json:"cap_mode"`
	Cap            quant.Wei          `json:"cap"`
	Plan           impact.Plan        `json:"-"`

	Sale              *sale.Result    `json:"sale,omitempty"`
	TreasuryBefore    quant.Micros    `json:"treasury_before"`
	TreasuryAfterSale quant.Micros    `json:"treasury_after_sale"`
	Vesting           *vesting.Result `json:"vesting,omitempty"`
	Impact            *impact.Result  `json:"impact,omitempty"`

	FinalSpot   quant.Micros       `json:"final_spot"`
	FinalMarket domain.MarketState `json:"final_market"`
	MarketCap   decimal.Decimal    `json:"free_float_market_cap"`

	Checks []Check `json:"checks,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// Check is one verified property of a run.
type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail"`
}

// Verify evaluates the run's properties and stores them in Checks. Phases that did not run
// are skipped.
func (rep *Report) Verify() []Check {
	var checks []Check
	add := func(name string, pass bool, format string, args ...any) {
		checks = append(checks, Check{Name: name, Pass: pass, Detail: fmt.Sprintf(format, args...)})
	}

	if s := rep.Sale; s != nil {
		if rep.CapMode == sale.PerTransaction {
			want := domain.Allocation{RemainingSupply: s.StartRemaining, CapPerTransaction: rep.Cap}.ExpectedPurchases()
			add("sale.purchase_count", uint64(len(s.Purchases)) == want,
				"%d purchases, ceil(%s / %s) = %d", len(s.Purchases), s.StartRemaining.Format(), rep.Cap.Format(), want)
		}

		capOK, costOK := true, true
		for _, p := range s.Purchases {
			if p.AmountAsset.Gt(rep.Cap) || p.AmountAsset.IsZero() {
				capOK = false
			}
			if cost, err := quant.ToSettlementCost(p.AmountAsset, rep.UnitPriceMicro); err != nil || cost != p.CostSettlement {
				costOK = false
			}
		}
		add("sale.cap_per_transaction", capOK, "every purchase in (0, %s]", rep.Cap.Format())
		add("sale.cost", costOK, "every cost = amount x %s / 10^%d", rep.UnitPriceMicro.PriceString(), quant.AssetDecimals)
		add("sale.drained", s.EndRemaining.IsZero() && s.TotalSold.Eq(s.StartRemaining),
			"sold %s of %s, %s remaining", s.TotalSold.Format(), s.StartRemaining.Format(), s.EndRemaining.Format())

		proceeds := rep.TreasuryAfterSale - rep.TreasuryBefore
		add("sale.treasury_proceeds", proceeds == s.TotalCost,
			"treasury received %s, purchases cost %s", proceeds.USDString(), s.TotalCost.USDString())
	}

	if v := rep.Vesting; v != nil {
		after := !v.At.Before(v.After.CliffEnds())
		add("vesting.gating", after && !v.Released.IsZero() && !v.After.Released.Gt(v.After.Total),
			"released %s of %s after cliff %s", v.Released.Format(), v.After.Total.Format(), v.After.CliffEnds().UTC().Format("2006-01-02"))
	}

	if im := rep.Impact; im != nil {
		stepsOK := len(im.Samples) == len(rep.Plan.Steps)
		for i, s := range im.Samples {
			if i < len(rep.Plan.Steps) && s.Notional != rep.Plan.Steps[i] {
				stepsOK = false
			}
		}
		add("impact.steps", stepsOK, "%d steps totalling %s", len(im.Samples), im.TotalSpent.USDString())
		add("impact.monotonic", im.Monotonic(), "spot %s -> %s", im.StartSpot.PriceString(), im.FinalSpot().PriceString())
		if n := len(im.Samples); n > 0 {
			add("impact.final_not_below_first", im.Samples[n-1].Spot >= im.Samples[0].Spot,
				"step 1 %s, step %d %s", im.Samples[0].Spot.PriceString(), n, im.Samples[n-1].Spot.PriceString())
		}
	}

	rep.Checks = checks
	return checks
}

// Failed returns the checks that did not pass.
func (rep *Report) Failed() []Check {
	var out []Check
	for _, c := range rep.Checks {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}
