package devchain

import (
	"context"
	"fmt"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// VestingVault locks tokens for a beneficiary. The schedule starts at the deployment block;
// the vested total is whatever the vault holds plus what it already released.
type VestingVault struct {
	chain       *Chain
	addr        common.Address
	token       *Token
	beneficiary common.Address
	start       time.Time
	cliff       time.Duration
	duration    time.Duration
	released    quant.Wei
}

// DeployVestingVault creates a vault for beneficiary. Fund it with a token transfer.
func (c *Chain) DeployVestingVault(ctx context.Context, deployer common.Address, token *Token, beneficiary common.Address, cliff, duration time.Duration) (*VestingVault, error) {
	if duration <= 0 || cliff < 0 {
		return nil, fmt.Errorf("deploy VestingVault: invalid schedule cliff=%s duration=%s", cliff, duration)
	}
	k, err := c.deploy(ctx, deployer, "VestingVault", func(addr common.Address, b *engine.Block) (contract, error) {
		return &VestingVault{
			chain:       c,
			addr:        addr,
			token:       token,
			beneficiary: beneficiary,
			start:       b.Time,
			cliff:       cliff,
			duration:    duration,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return k.(*VestingVault), nil
}

// VestingVault binds the vault deployed at addr.
func (c *Chain) VestingVault(ctx context.Context, addr common.Address) (*VestingVault, error) {
	return lookup[*VestingVault](c, ctx, addr, "VestingVault")
}

func (v *VestingVault) Address() common.Address { return v.addr }
func (v *VestingVault) kind() string            { return "VestingVault" }
func (v *VestingVault) snapshot() any           { return v.schedule() }

// schedule must run on the sequencer goroutine.
func (v *VestingVault) schedule() domain.VestingSchedule {
	total, err := v.token.book.balanceOf(v.addr).Add(v.released)
	if err != nil {
		panic(fmt.Sprintf("VESTING_INVARIANT_OVERFLOW: %v", err))
	}
	return domain.VestingSchedule{
		Beneficiary: v.beneficiary,
		Start:       v.start,
		Cliff:       v.cliff,
		Duration:    v.duration,
		Total:       total,
		Released:    v.released,
	}
}

// Schedule returns the vault's current schedule.
func (v *VestingVault) Schedule(ctx context.Context) (domain.VestingSchedule, error) {
	var out domain.VestingSchedule
	err := v.chain.view(ctx, "vesting.schedule", func(*engine.Block) error {
		out = v.schedule()
		return nil
	})
	return out, err
}

// Release pays the vested, unreleased amount to the beneficiary and returns it.
func (v *VestingVault) Release(ctx context.Context, caller common.Address) (quant.Wei, error) {
	var out quant.Wei
	err := v.chain.submit(ctx, caller, "vesting.release", func(b *engine.Block) error {
		if caller != v.beneficiary {
			return ErrNotBeneficiary
		}
		s := v.schedule()
		amount := s.Releasable(b.Time)
		if amount.IsZero() {
			if b.Time.Before(s.CliffEnds()) {
				return fmt.Errorf("%w: cliff ends %s, block time %s", ErrNothingToRelease, s.CliffEnds().Format(time.RFC3339), b.Time.Format(time.RFC3339))
			}
			return ErrNothingToRelease
		}
		released, err := v.released.Add(amount)
		if err != nil {
			return err
		}

		v.token.transfer(b, v.addr, v.beneficiary, amount)
		v.released = released
		b.Emit(&event.ReleaseEvent{BaseEvent: event.BaseEvent{Contract: v.addr}, Beneficiary: v.beneficiary, Amount: amount})
		out = amount
		return nil
	})
	return out, err
}
