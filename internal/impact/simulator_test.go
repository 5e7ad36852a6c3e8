package impact

import (
	"context"
	"testing"

	"artist_ipo/internal/deploy/deploytest"
	"artist_ipo/internal/devchain"
	"artist_ipo/internal/domain"
	"artist_ipo/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name    string
		total   quant.Micros
		steps   int
		policy  RemainderPolicy
		want    []quant.Micros
		wantErr error
	}{
		{"even split", quant.USD(50_000), 10, Reject, repeat(quant.USD(5_000), 10), nil},
		{"single step", quant.USD(7), 1, Reject, []quant.Micros{quant.USD(7)}, nil},
		{"uneven rejected", quant.USD(50_000) + 3, 10, Reject, nil, domain.ErrIndivisibleNotional},
		{"uneven carried", quant.USD(50_000) + 3, 10, Carry, append(repeat(quant.USD(5_000), 9), quant.USD(5_000)+3), nil},
		{"less than a micro per step", 5, 10, Carry, nil, domain.ErrIndivisibleNotional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.total, tt.steps, tt.policy)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Steps)

			var sum quant.Micros
			for _, s := range p.Steps {
				sum += s
			}
			assert.Equal(t, tt.total, sum)
		})
	}

	var cfgErr *domain.ConfigError
	_, err := NewPlan(quant.USD(1), 0, Reject)
	assert.ErrorAs(t, err, &cfgErr)
	_, err = NewPlan(0, 3, Reject)
	assert.ErrorAs(t, err, &cfgErr)
	_, err = ParseRemainderPolicy("round")
	assert.ErrorAs(t, err, &cfgErr)
}

func repeat(m quant.Micros, n int) []quant.Micros {
	out := make([]quant.Micros, n)
	for i := range out {
		out[i] = m
	}
	return out
}

func TestRun_ReferenceScenario(t *testing.T) {
	env := deploytest.New(t, 15, deploytest.Params())
	ctx := context.Background()
	buyer := env.C.Buyers[0]

	plan, err := NewPlan(quant.USD(50_000), 10, Reject)
	require.NoError(t, err)

	res, err := NewSimulator(env.C.Market, env.C.Stable, env.Logger, env.Metrics).Run(ctx, buyer, plan)
	require.NoError(t, err)

	assert.Equal(t, quant.Micros(150_000), res.StartSpot)
	require.Len(t, res.Samples, 10)
	for i, s := range res.Samples {
		assert.Equal(t, i+1, s.Step)
		assert.Equal(t, quant.USD(5_000), s.Notional)
		assert.Equal(t, quant.USD(int64(5_000*(i+1))), s.Cumulative)
		assert.False(t, s.Received.IsZero())
	}
	assert.True(t, res.Monotonic())
	assert.GreaterOrEqual(t, res.Samples[9].Spot, res.Samples[0].Spot)
	assert.Equal(t, quant.USD(50_000), res.TotalSpent)
	assert.Equal(t, 10, res.TopUps)
	assert.Equal(t, uint64(10), env.Metrics.Snapshot().ImpactSteps)

	// the fee stays in the pool, so settlement reserves grow by the full notional
	final := res.Final()
	assert.Equal(t, quant.USD(57_500), final.ReserveSettlement)
	bought, err := env.C.Asset.BalanceOf(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, bought.Eq(res.TotalReceived))
	k, err := quant.Tokens(50_000).Sub(final.ReserveAsset)
	require.NoError(t, err)
	assert.True(t, k.Eq(res.TotalReceived))
}

func TestRun_RejectedStepKeepsEarlierSteps(t *testing.T) {
	env := deploytest.New(t, 4, deploytest.Params())
	ctx := context.Background()

	// a step larger than the stable coin can mint is rejected by the faucet
	plan := Plan{Total: quant.USD(1_000), Steps: []quant.Micros{quant.USD(1_000), quant.Micros(1<<63 - 1)}}
	res, err := NewSimulator(env.C.Market, env.C.Stable, env.Logger, env.Metrics).Run(ctx, env.C.Buyers[0], plan)

	require.ErrorIs(t, err, domain.ErrFundingFailed)
	_, step, _ := domain.PhaseOf(err)
	assert.Equal(t, 2, step)
	require.Len(t, res.Samples, 1)

	reserves, err := env.C.Market.Reserves(ctx)
	require.NoError(t, err)
	assert.Equal(t, quant.USD(8_500), reserves.ReserveSettlement)
}

func TestRun_SpotNeverDecreases(t *testing.T) {
	p := deploytest.Params()
	p.SaleAllocation = quant.Tokens(300_000) // deployer keeps 300k tokens to seed test markets
	env := deploytest.New(t, 4, p)
	ctx := context.Background()

	token := env.C.Asset.(*devchain.Token)
	usdc := env.C.Stable.(*devchain.Stable)
	deployer := env.C.Deployer
	buyer := env.C.Buyers[0]

	rapid.Check(t, func(rt *rapid.T) {
		seedTokens := quant.Tokens(rapid.Uint64Range(1, 1_000).Draw(rt, "seed_tokens"))
		seedUSD := quant.USD(rapid.Int64Range(1, 1_000).Draw(rt, "seed_usd"))
		fee := rapid.IntRange(0, 100).Draw(rt, "fee_bps")
		steps := rapid.SliceOfN(rapid.Int64Range(1_000, 5_000_000_000), 1, 12).Draw(rt, "steps")

		amm, err := env.Chain.DeployAMM(ctx, deployer, token, usdc, fee)
		if err != nil {
			rt.Fatalf("deploy: %v", err)
		}
		if err := token.Approve(ctx, deployer, amm.Address(), seedTokens); err != nil {
			rt.Fatalf("approve: %v", err)
		}
		if err := usdc.Approve(ctx, deployer, amm.Address(), seedUSD); err != nil {
			rt.Fatalf("approve: %v", err)
		}
		if err := amm.AddLiquidity(ctx, deployer, seedTokens, seedUSD); err != nil {
			rt.Fatalf("add liquidity: %v", err)
		}

		plan := Plan{}
		for _, s := range steps {
			plan.Steps = append(plan.Steps, quant.Micros(s))
			plan.Total += quant.Micros(s)
		}
		res, err := NewSimulator(amm, usdc, env.Logger, env.Metrics).Run(ctx, buyer, plan)
		if err != nil {
			rt.Fatalf("run: %v", err)
		}
		if !res.Monotonic() {
			rt.Fatalf("spot decreased: start %d, samples %+v", res.StartSpot, res.Samples)
		}
	})
}
