package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"artist_ipo/internal/deploy/deploytest"
	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"
	"artist_ipo/internal/impact"
	"artist_ipo/internal/sale"
	"artist_ipo/internal/vesting"
	"artist_ipo/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func referenceConfig(t *testing.T) Config {
	t.Helper()
	plan, err := impact.NewPlan(quant.USD(50_000), 10, impact.Reject)
	require.NoError(t, err)
	return Config{
		Sale: sale.Config{
			CapPerTransaction: quant.Tokens(50_000),
			Mode:              sale.PerTransaction,
			Funding:           sale.FundingPolicy{Prefund: quant.USD(10_000), Parallelism: 4},
		},
		VestingAdvance: 40 * day,
		Impact:         plan,
	}
}

func TestRunner_FullLifecycle(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())

	rep, err := NewRunner(env.C, referenceConfig(t), env.Logger, env.Metrics).Run(context.Background())
	require.NoError(t, err)

	t.Run("allocation", func(t *testing.T) {
		a := rep.Allocation
		assert.True(t, a.TotalSupply.Eq(quant.Tokens(1_000_000)))
		assert.True(t, a.Locked.Eq(quant.Tokens(400_000)))
		assert.True(t, a.ForSale.Eq(quant.Tokens(550_000)))
		assert.True(t, a.FreeFloat.Eq(quant.Tokens(600_000)))
		assert.Equal(t, quant.Micros(150_000), rep.UnitPriceMicro)
	})

	t.Run("sale", func(t *testing.T) {
		require.NotNil(t, rep.Sale)
		assert.Len(t, rep.Sale.Purchases, 11)
		assert.Equal(t, "$7,500.00", rep.TreasuryBefore.USDString())
		assert.Equal(t, "$90,000.00", rep.TreasuryAfterSale.USDString())
	})

	t.Run("vesting", func(t *testing.T) {
		require.NotNil(t, rep.Vesting)
		assert.True(t, rep.Vesting.Released.Gt(quant.Tokens(22_222)))
		assert.True(t, rep.Vesting.Released.Lt(quant.Tokens(22_300)))
		assert.True(t, rep.Vesting.BeneficiaryBalance.Eq(rep.Vesting.Released))
	})

	t.Run("impact", func(t *testing.T) {
		require.NotNil(t, rep.Impact)
		assert.Len(t, rep.Impact.Samples, 10)
		assert.Equal(t, "$57,500.00", rep.FinalMarket.ReserveSettlement.USDString())
		assert.Greater(t, int64(rep.FinalSpot), int64(150_000))
		want := rep.Allocation.FreeFloat.Decimal().Mul(rep.FinalSpot.Decimal())
		assert.True(t, rep.MarketCap.Equal(want), "market cap %s, want %s", rep.MarketCap, want)
	})

	t.Run("checks", func(t *testing.T) {
		checks := rep.Verify()
		assert.Len(t, checks, 9)
		assert.Empty(t, rep.Failed())
	})

	snap := env.Metrics.Snapshot()
	assert.EqualValues(t, 11, snap.Purchases)
	assert.EqualValues(t, 10, snap.ImpactSteps)
	assert.EqualValues(t, 1, snap.Releases)
	assert.Zero(t, snap.ErrorsTotal)
}

func TestRunner_PerWalletSkipsPurchaseCountCheck(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())
	cfg := referenceConfig(t)
	cfg.Sale.Mode = sale.PerWallet

	rep, err := NewRunner(env.C, cfg, env.Logger, env.Metrics).Run(context.Background())
	require.NoError(t, err)

	rep.Verify()
	assert.Empty(t, rep.Failed())
	for _, c := range rep.Checks {
		assert.NotEqual(t, "sale.purchase_count", c.Name)
	}
}

func TestRunner_Failures(t *testing.T) {
	t.Run("impact buyer outside pool", func(t *testing.T) {
		env := deploytest.New(t, 6, deploytest.Params())
		cfg := referenceConfig(t)
		cfg.ImpactBuyer = 3

		rep, err := NewRunner(env.C, cfg, env.Logger, env.Metrics).Run(context.Background())
		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "impact.buyer_index", cfgErr.Field)
		assert.Nil(t, rep.Sale)
		assert.EqualValues(t, 1, env.Metrics.Snapshot().ErrorsTotal)
	})

	t.Run("sale rejected stops the run", func(t *testing.T) {
		env := deploytest.New(t, 8, deploytest.Params())

		rep, err := NewRunner(env.C, referenceConfig(t), env.Logger, env.Metrics).Run(context.Background())
		require.ErrorIs(t, err, domain.ErrPurchaseRejected)
		require.ErrorIs(t, err, devchain.ErrWalletCap)

		phase, iteration, ok := domain.PhaseOf(err)
		require.True(t, ok)
		assert.Equal(t, sale.Phase, phase)
		assert.Equal(t, len(env.C.Buyers)+1, iteration)

		require.NotNil(t, rep.Sale)
		assert.Len(t, rep.Sale.Purchases, len(env.C.Buyers))
		assert.Nil(t, rep.Vesting)
		assert.Nil(t, rep.Impact)
		assert.Equal(t, err.Error(), rep.Err)
	})

	t.Run("release before cliff", func(t *testing.T) {
		env := deploytest.New(t, 15, deploytest.Params())
		cfg := referenceConfig(t)
		cfg.VestingAdvance = 10 * day

		rep, err := NewRunner(env.C, cfg, env.Logger, env.Metrics).Run(context.Background())
		require.ErrorIs(t, err, domain.ErrReleaseRejected)
		require.NotNil(t, rep.Sale)
		assert.Nil(t, rep.Impact)
	})
}

func TestRender(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())
	rep, err := NewRunner(env.C, referenceConfig(t), env.Logger, env.Metrics).Run(context.Background())
	require.NoError(t, err)
	rep.Network = "testnet"
	rep.Verify()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, "WEAZ"))
	out := buf.String()
	assert.Contains(t, out, "NETWORK: testnet")
	assert.Contains(t, out, "IPO TOKENS   : 550,000.0 WEAZ  (for sale at $0.15)")
	assert.Contains(t, out, "IPO PROCEEDS: $82,500.00 over 11 purchases")
	assert.Contains(t, out, "TREASURY AFTER IPO: $90,000.00")
	assert.Contains(t, out, "AFTER $50,000.00 SECONDARY BUY")
	assert.Contains(t, out, "FREE-FLOAT MARKET CAP ESTIMATE: "+quant.FormatUSD(rep.MarketCap))
	assert.Contains(t, out, "[ok  ] impact.monotonic")
	assert.NotContains(t, out, "FAIL")

	buf.Reset()
	require.NoError(t, RenderMetrics(&buf, env.Metrics.Snapshot()))
	assert.Contains(t, buf.String(), "11 purchases, 10 impact steps, 1 releases")

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, rep))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "per_transaction", decoded["cap_mode"])
	assert.Len(t, decoded["checks"], 9)
	assert.NotContains(t, decoded, "error")
}

func referenceDrive() DriveConfig {
	return DriveConfig{
		IPOPurchase:    quant.Tokens(2_000),
		Advance:        40 * day,
		Price:          150_000,
		SeedTokens:     quant.Tokens(5_000),
		SeedSettlement: quant.USD(1_000),
		Buy:            quant.Tokens(1_000),
		Sell:           quant.Tokens(500),
	}
}

func TestRunDrive(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())

	rep, err := RunDrive(context.Background(), env.C, referenceDrive(), env.Logger, env.Metrics)
	require.NoError(t, err)

	assert.Equal(t, env.C.Buyers[0], rep.Trader)
	assert.Equal(t, "$300.00", rep.IPOCost.USDString())
	assert.Equal(t, "$150.00", rep.BuyCost.USDString())
	assert.Equal(t, "$75.00", rep.SellProceeds.USDString())
	assert.True(t, rep.MarketAsset.Eq(quant.Tokens(4_500)))
	assert.Equal(t, "$1,075.00", rep.MarketSettlement.USDString())
	assert.True(t, rep.TraderAsset.Eq(quant.Tokens(2_500)))
	assert.Equal(t, "$75.00", rep.TraderSettlement.USDString())

	var buf bytes.Buffer
	require.NoError(t, RenderDrive(&buf, rep, "WEAZ"))
	assert.Contains(t, buf.String(), "SECONDARY BALANCES: 4,500.0 WEAZ, $1,075.00")
}

func TestRunDrive_SeedExceedsRelease(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())
	cfg := referenceDrive()
	cfg.SeedTokens = quant.Tokens(30_000)

	rep, err := RunDrive(context.Background(), env.C, cfg, env.Logger, env.Metrics)
	require.Error(t, err)
	phase, step, ok := domain.PhaseOf(err)
	require.True(t, ok)
	assert.Equal(t, DrivePhase, phase)
	assert.Equal(t, 4, step)
	assert.Equal(t, err.Error(), rep.Err)
}

func TestVerify_VestingGatingUsesReleaseTime(t *testing.T) {
	schedule := domain.VestingSchedule{
		Start:    deploytest.Genesis,
		Cliff:    30 * day,
		Duration: 180 * day,
		Total:    quant.Tokens(400_000),
		Released: quant.Tokens(1),
	}
	gating := func(at time.Time) Check {
		rep := &Report{Vesting: &vesting.Result{After: schedule, At: at, Released: quant.Tokens(1)}}
		for _, c := range rep.Verify() {
			if c.Name == "vesting.gating" {
				return c
			}
		}
		t.Fatal("vesting.gating check missing")
		return Check{}
	}

	assert.True(t, gating(schedule.CliffEnds()).Pass)
	assert.True(t, gating(schedule.CliffEnds().Add(6*time.Hour)).Pass)
	assert.False(t, gating(schedule.CliffEnds().Add(-time.Second)).Pass)
}
