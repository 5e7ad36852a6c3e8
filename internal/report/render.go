package report

import (
	"encoding/json"
	"fmt"
	"io"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/infra"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// Render prints the console report. symbol names the asset unit.
func Render(w io.Writer, rep *Report, symbol string) error {
	ew := &errWriter{w: w}
	if rep.Network != "" {
		ew.printf("NETWORK: %s\n", rep.Network)
	}
	if rep.RunID != "" {
		ew.printf("RUN    : %s\n", rep.RunID)
	}

	a := rep.Allocation
	ew.printf("TOTAL SUPPLY : %s %s\n", a.TotalSupply.Format(), symbol)
	ew.printf("VAULT TOKENS : %s %s  (artist locked; vesting)\n", a.Locked.Format(), symbol)
	ew.printf("IPO TOKENS   : %s %s  (for sale at $%s)\n", a.ForSale.Format(), symbol, rep.UnitPriceMicro.Decimal().StringFixed(2))

	if s := rep.Sale; s != nil {
		ew.printf("IPO REMAINING (start): %s %s\n", s.StartRemaining.Format(), symbol)
		for _, p := range s.Purchases {
			ew.printf("IPO BUY #%-3d %s bought %s %s for %s\n",
				p.Seq, shortAddr(p.Buyer.Hex()), p.AmountAsset.Format(), symbol, p.CostSettlement.USDString())
		}
		ew.printf("IPO REMAINING (end): %s %s\n", s.EndRemaining.Format(), symbol)
		ew.printf("IPO PROCEEDS: %s over %d purchases (cap %s, %s)\n",
			s.TotalCost.USDString(), len(s.Purchases), rep.Cap.Format(), rep.CapMode)
		ew.printf("TREASURY AFTER IPO: %s\n", rep.TreasuryAfterSale.USDString())
	}

	if v := rep.Vesting; v != nil {
		ew.printf("VESTING: advanced %s, cliff ends %s\n", v.AdvancedBy, v.After.CliffEnds().UTC().Format("2006-01-02 15:04:05"))
		ew.printf("VESTING RELEASED: %s %s (total released %s of %s)\n",
			v.Released.Format(), symbol, v.After.Released.Format(), v.After.Total.Format())
		ew.printf("ARTIST TOKEN BAL: %s %s\n", v.BeneficiaryBalance.Format(), symbol)
	}

	if im := rep.Impact; im != nil {
		ew.printf("AMM SPOT START: %s USD / %s\n", im.StartSpot.PriceString(), symbol)
		for _, s := range im.Samples {
			ew.printf("AFTER %s SECONDARY BUY: spot ~ %s USD / %s\n", s.Cumulative.USDString(), s.Spot.PriceString(), symbol)
		}
		final := rep.FinalMarket
		ew.printf("AMM RESERVES: %s %s, %s\n", final.ReserveAsset.Format(), symbol, final.ReserveSettlement.USDString())
		ew.printf("FREE-FLOAT MARKET CAP ESTIMATE: %s (float %s x $%s)\n",
			quant.FormatUSD(rep.MarketCap), rep.Allocation.FreeFloat.Format(), rep.FinalSpot.PriceString())
	}

	if len(rep.Checks) > 0 {
		ew.printf("CHECKS:\n")
		for _, c := range rep.Checks {
			mark := "ok  "
			if !c.Pass {
				mark = "FAIL"
			}
			ew.printf("  [%s] %-30s %s\n", mark, c.Name, c.Detail)
		}
	}
	if rep.Err != "" {
		ew.printf("ERROR: %s\n", rep.Err)
	}
	return ew.err
}

// RenderMetrics prints a metrics snapshot.
func RenderMetrics(w io.Writer, m infra.MetricsSnapshot) error {
	ew := &errWriter{w: w}
	ew.printf("METRICS: %d tx mined, %d reverted, %d purchases, %d impact steps, %d releases, %d top-ups, avg tx %dns\n",
		m.TxMined, m.TxReverted, m.Purchases, m.ImpactSteps, m.Releases, m.FundingTopUps, m.AvgLatencyNs)
	return ew.err
}

// RenderJSON writes v as indented JSON.
func RenderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortAddr(hex string) string {
	if len(hex) <= 10 {
		return hex
	}
	return hex[:10] + "..."
}

// RenderTrades prints per-contract trade activity, naming contracts from book.
func RenderTrades(w io.Writer, trades []domain.MarketActivity, book domain.AddressBook, symbol string) error {
	names := make(map[common.Address]string, book.Len())
	for name, addr := range book.Entries() {
		names[addr] = name
	}

	ew := &errWriter{w: w}
	for _, m := range trades {
		name := names[m.Contract]
		if name == "" {
			name = shortAddr(m.Contract.Hex())
		}
		premium := "n/a"
		if m.Premium != nil {
			premium = m.Premium.StringFixed(2) + "%"
		}
		ew.printf("MARKET %-14s %d buys, %d sells, %s %s for %s, last $%s (premium %s)\n",
			name, m.Buys, m.Sells, m.VolumeAsset.Format(), symbol, m.VolumeSettlement.USDString(), m.LastPrice.PriceString(), premium)
	}
	return ew.err
}
