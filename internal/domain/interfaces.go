package domain

import (
	"context"
	"time"

	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// Collaborators are blocking calls against external ledger state. A method returns only after
// its effect is visible to the next call. Every mutating method names the acting account.

// AssetLedger is the 18-decimal asset token.
type AssetLedger interface {
	Address() common.Address
	TotalSupply(ctx context.Context) (quant.Wei, error)
	BalanceOf(ctx context.Context, owner common.Address) (quant.Wei, error)
	Transfer(ctx context.Context, from, to common.Address, amount quant.Wei) error
	Approve(ctx context.Context, owner, spender common.Address, amount quant.Wei) error
}

// StableLedger is the 6-decimal settlement currency with a faucet.
type StableLedger interface {
	Address() common.Address
	Faucet(ctx context.Context, to common.Address, amount quant.Micros) error
	Transfer(ctx context.Context, from, to common.Address, amount quant.Micros) error
	Approve(ctx context.Context, owner, spender common.Address, amount quant.Micros) error
	BalanceOf(ctx context.Context, owner common.Address) (quant.Micros, error)
}

// PrimarySaleVault sells a fixed allocation at a fixed unit price.
type PrimarySaleVault interface {
	Address() common.Address
	Buy(ctx context.Context, buyer common.Address, amount quant.Wei) error
	Remaining(ctx context.Context) (quant.Wei, error)
	UnitPriceMicro() quant.Micros
	Treasury() common.Address
}

// SecondaryMarket is a constant-product market maker priced from its reserves.
type SecondaryMarket interface {
	Address() common.Address
	AddLiquidity(ctx context.Context, provider common.Address, asset quant.Wei, settlement quant.Micros) error
	BuyTokens(ctx context.Context, buyer common.Address, settlement quant.Micros) (quant.Wei, error)
	SpotPriceMicro(ctx context.Context) (quant.Micros, error)
	Reserves(ctx context.Context) (MarketState, error)
}

// SecondaryMarketAlt is a fixed-price market whose owner sets the price.
type SecondaryMarketAlt interface {
	Address() common.Address
	SetPrice(ctx context.Context, owner common.Address, price quant.Micros) error
	BuyTokens(ctx context.Context, buyer common.Address, amount quant.Wei) error
	SellTokens(ctx context.Context, seller common.Address, amount quant.Wei) error
	Balances(ctx context.Context) (quant.Wei, quant.Micros, error)
}

// LockupVault holds vesting tokens and releases them to its beneficiary.
type LockupVault interface {
	Address() common.Address
	Release(ctx context.Context, caller common.Address) (quant.Wei, error)
	Schedule(ctx context.Context) (VestingSchedule, error)
}

// Clock is the chain's time-advance capability.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
	IncreaseTime(ctx context.Context, d time.Duration) error
	Mine(ctx context.Context) error
}

// Collaborators are the handles a run talks to, resolved from an address book.
type Collaborators struct {
	Asset     AssetLedger
	Stable    StableLedger
	Vault     PrimarySaleVault
	Market    SecondaryMarket
	Secondary SecondaryMarketAlt
	Lockup    LockupVault
	Clock     Clock

	Deployer common.Address
	Artist   common.Address
	Treasury common.Address
	// Buyers are the accounts not named in the book, in signer order.
	Buyers []common.Address
}
