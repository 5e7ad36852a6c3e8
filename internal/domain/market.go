package domain

import (
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MarketState is an observed snapshot of a constant-product market's reserves.
// It is read from the market, never owned by the simulation.
type MarketState struct {
	ReserveAsset      quant.Wei    `json:"reserve_asset"`
	ReserveSettlement quant.Micros `json:"reserve_settlement"`
}

// SpotPrice returns micro-settlement per whole asset unit implied by the reserves.
func (m MarketState) SpotPrice() (quant.Micros, error) {
	return quant.SpotPrice(m.ReserveAsset, m.ReserveSettlement)
}

// PriceSample is the market observed after one demand step.
type PriceSample struct {
	Step       int          `json:"step"`
	Notional   quant.Micros `json:"notional"`   // spent in this step
	Cumulative quant.Micros `json:"cumulative"` // spent up to and including this step
	Received   quant.Wei    `json:"received"`   // asset received in this step
	Spot       quant.Micros `json:"spot"`
	Market     MarketState  `json:"market"`
}

// MarketActivity aggregates the trades one contract settled.
type MarketActivity struct {
	Contract         common.Address `json:"contract"`
	Buys             int            `json:"buys"`
	Sells            int            `json:"sells"`
	VolumeAsset      quant.Wei      `json:"volume_asset"`
	VolumeSettlement quant.Micros   `json:"volume_settlement"`
	// LastPrice is the execution price of the latest trade per whole asset unit.
	LastPrice quant.Micros `json:"last_price"`
	LastBlock uint64       `json:"last_block"`
	// Premium is LastPrice over the reference price, in percent. Nil without a reference.
	Premium *decimal.Decimal `json:"premium,omitempty"`
}

// Trades returns Buys + Sells.
func (m *MarketActivity) Trades() int { return m.Buys + m.Sells }
