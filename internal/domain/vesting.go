package domain

import (
	"time"

	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VestingSchedule is the time-gated release schedule of a lockup vault.
// Nothing vests before Start+Cliff; from there Total vests linearly over Duration.
// Released never decreases.
type VestingSchedule struct {
	Beneficiary common.Address `json:"beneficiary"`
	Start       time.Time      `json:"start"`
	Cliff       time.Duration  `json:"cliff"`
	Duration    time.Duration  `json:"duration"`
	Total       quant.Wei      `json:"total"`
	Released    quant.Wei      `json:"released"`
}

// CliffEnds returns the first instant at which a release may succeed.
func (v VestingSchedule) CliffEnds() time.Time {
	return v.Start.Add(v.Cliff)
}

// Ends returns the instant at which everything has vested.
func (v VestingSchedule) Ends() time.Time {
	return v.CliffEnds().Add(v.Duration)
}

// VestedAt returns the amount vested at t, truncated to whole seconds.
func (v VestingSchedule) VestedAt(t time.Time) quant.Wei {
	cliff := v.CliffEnds()
	if t.Before(cliff) {
		return quant.Wei{}
	}
	if v.Duration <= 0 || !t.Before(v.Ends()) {
		return v.Total
	}
	elapsed := uint256.NewInt(uint64(t.Sub(cliff) / time.Second))
	duration := uint256.NewInt(uint64(v.Duration / time.Second))
	if duration.IsZero() {
		return v.Total
	}
	// 512-bit intermediate; the quotient is below Total since elapsed < duration.
	vested, overflow := new(uint256.Int).MulDivOverflow(v.Total.Uint256(), elapsed, duration)
	if overflow {
		return v.Total
	}
	return quant.WeiFromUint256(vested)
}

// Releasable returns VestedAt(t) - Released, floored at zero.
func (v VestingSchedule) Releasable(t time.Time) quant.Wei {
	vested := v.VestedAt(t)
	if !vested.Gt(v.Released) {
		return quant.Wei{}
	}
	r, _ := vested.Sub(v.Released)
	return r
}
