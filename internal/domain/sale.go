package domain

import (
	"fmt"

	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Allocation is the primary-sale supply being drained in capped installments.
type Allocation struct {
	RemainingSupply   quant.Wei
	CapPerTransaction quant.Wei
	UnitPriceMicro    quant.Micros
}

// Validate checks the allocation can be sold down.
func (a Allocation) Validate() error {
	if a.CapPerTransaction.IsZero() {
		return &ConfigError{Field: "cap_per_transaction", Err: fmt.Errorf("must be positive")}
	}
	if a.UnitPriceMicro <= 0 {
		return &ConfigError{Field: "unit_price_micro", Err: fmt.Errorf("must be positive, got %d", a.UnitPriceMicro)}
	}
	return nil
}

// NextChunk returns min(CapPerTransaction, RemainingSupply).
func (a Allocation) NextChunk() quant.Wei {
	return quant.MinWei(a.CapPerTransaction, a.RemainingSupply)
}

// ExpectedPurchases returns ceil(RemainingSupply / CapPerTransaction).
func (a Allocation) ExpectedPurchases() uint64 {
	if a.CapPerTransaction.IsZero() {
		return 0
	}
	r := a.RemainingSupply.Uint256()
	c := a.CapPerTransaction.Uint256()
	q, m := new(uint256.Int).DivMod(r, c, new(uint256.Int))
	n := q.Uint64()
	if !m.IsZero() {
		n++
	}
	return n
}

// Buyer is one participant of the primary sale.
type Buyer struct {
	Identity       common.Address
	FundingBalance quant.Micros
}

// PurchaseRecord is produced once per successful primary-sale purchase and never mutated.
type PurchaseRecord struct {
	Seq            int            `json:"seq"`
	Buyer          common.Address `json:"buyer"`
	AmountAsset    quant.Wei      `json:"amount_asset"`
	CostSettlement quant.Micros   `json:"cost_settlement"`
}
