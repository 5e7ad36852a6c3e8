package event

import (
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Type identifies a chain log.
type Type string

const (
	TypeTransfer       Type = "Transfer"
	TypeApproval       Type = "Approval"
	TypePurchase       Type = "Purchase"
	TypeSwap           Type = "Swap"
	TypeLiquidityAdded Type = "LiquidityAdded"
	TypeRelease        Type = "Release"
	TypePriceSet       Type = "PriceSet"
	TypeDeployed       Type = "Deployed"
)

// Event is a typed log emitted by a contract during a transaction.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
	stamp(seq uint64, ts int64)
}

// BaseEvent carries the block a log was mined in.
type BaseEvent struct {
	Seq      uint64         `json:"block"`
	Ts       int64          `json:"ts"` // unix seconds of the block
	Contract common.Address `json:"contract"`
}

func (b *BaseEvent) GetSeq() uint64 { return b.Seq }
func (b *BaseEvent) GetTs() int64   { return b.Ts }

func (b *BaseEvent) stamp(seq uint64, ts int64) {
	b.Seq = seq
	b.Ts = ts
}

// Stamp sets the block number and timestamp on ev.
func Stamp(ev Event, seq uint64, ts int64) {
	ev.stamp(seq, ts)
}

// TransferEvent moves an asset or settlement balance. Exactly one of Asset/Settlement is set.
type TransferEvent struct {
	BaseEvent
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Asset      *quant.Wei     `json:"asset,omitempty"`
	Settlement *quant.Micros  `json:"settlement,omitempty"`
}

func (e *TransferEvent) GetType() Type { return TypeTransfer }

// ApprovalEvent sets an allowance.
type ApprovalEvent struct {
	BaseEvent
	Owner      common.Address `json:"owner"`
	Spender    common.Address `json:"spender"`
	Asset      *quant.Wei     `json:"asset,omitempty"`
	Settlement *quant.Micros  `json:"settlement,omitempty"`
}

func (e *ApprovalEvent) GetType() Type { return TypeApproval }

// PurchaseEvent is a primary-sale purchase.
type PurchaseEvent struct {
	BaseEvent
	Buyer  common.Address `json:"buyer"`
	Amount quant.Wei      `json:"amount"`
	Cost   quant.Micros   `json:"cost"`
}

func (e *PurchaseEvent) GetType() Type { return TypePurchase }

// SwapEvent is a secondary-market trade.
type SwapEvent struct {
	BaseEvent
	Trader        common.Address `json:"trader"`
	Buy           bool           `json:"buy"`
	AssetAmount   quant.Wei      `json:"asset_amount"`
	SettlementAmt quant.Micros   `json:"settlement_amount"`
}

func (e *SwapEvent) GetType() Type { return TypeSwap }

// LiquidityAddedEvent records reserves contributed to a market.
type LiquidityAddedEvent struct {
	BaseEvent
	Provider   common.Address `json:"provider"`
	Asset      quant.Wei      `json:"asset"`
	Settlement quant.Micros   `json:"settlement"`
}

func (e *LiquidityAddedEvent) GetType() Type { return TypeLiquidityAdded }

// ReleaseEvent is a vesting release.
type ReleaseEvent struct {
	BaseEvent
	Beneficiary common.Address `json:"beneficiary"`
	Amount      quant.Wei      `json:"amount"`
}

func (e *ReleaseEvent) GetType() Type { return TypeRelease }

// PriceSetEvent is a fixed-price market repricing.
type PriceSetEvent struct {
	BaseEvent
	Price quant.Micros `json:"price"`
}

func (e *PriceSetEvent) GetType() Type { return TypePriceSet }

// DeployedEvent records a contract creation.
type DeployedEvent struct {
	BaseEvent
	Name     string         `json:"name"`
	Deployer common.Address `json:"deployer"`
}

func (e *DeployedEvent) GetType() Type { return TypeDeployed }
