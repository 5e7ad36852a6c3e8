package devchain

import (
	"fmt"

	"artist_ipo/pkg/quant"
	"artist_ipo/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// Contract bodies check every precondition first and only then apply effects. The ledgers
// therefore treat a failed debit as a broken invariant and panic; the sequencer halts and
// dumps state.

// assetBalance is one holder's position in an 18-decimal ledger.
type assetBalance struct {
	Amount    quant.Wei `json:"amount"`
	LastBlock uint64    `json:"last_block"` // block of the last change
}

// assetBook manages 18-decimal balances and allowances with invariant checking.
type assetBook struct {
	symbol     string
	supply     quant.Wei
	balances   map[common.Address]*assetBalance
	allowances map[common.Address]map[common.Address]quant.Wei
}

func newAssetBook(symbol string) *assetBook {
	return &assetBook{
		symbol:     symbol,
		balances:   make(map[common.Address]*assetBalance),
		allowances: make(map[common.Address]map[common.Address]quant.Wei),
	}
}

func (ab *assetBook) balanceOf(owner common.Address) quant.Wei {
	if b, ok := ab.balances[owner]; ok {
		return b.Amount
	}
	return quant.Wei{}
}

func (ab *assetBook) allowance(owner, spender common.Address) quant.Wei {
	return ab.allowances[owner][spender]
}

func (ab *assetBook) get(owner common.Address) *assetBalance {
	b, ok := ab.balances[owner]
	if !ok {
		b = &assetBalance{}
		ab.balances[owner] = b
	}
	return b
}

// checkMove reports whether from can send amount.
func (ab *assetBook) checkMove(from common.Address, amount quant.Wei) error {
	if have := ab.balanceOf(from); have.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(), have, ab.symbol, amount)
	}
	return nil
}

// checkSpend reports whether spender may move amount out of owner.
func (ab *assetBook) checkSpend(owner, spender common.Address, amount quant.Wei) error {
	if have := ab.allowance(owner, spender); have.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s %s to %s, needs %s", ErrInsufficientAllowance, owner.Hex(), have, ab.symbol, spender.Hex(), amount)
	}
	return ab.checkMove(owner, amount)
}

// mint credits new supply. Panics on overflow.
func (ab *assetBook) mint(to common.Address, amount quant.Wei, block uint64) {
	supply, err := ab.supply.Add(amount)
	if err != nil {
		panic(fmt.Sprintf("SUPPLY_OVERFLOW: %s %v", ab.symbol, err))
	}
	ab.supply = supply
	ab.credit(to, amount, block)
}

func (ab *assetBook) credit(to common.Address, amount quant.Wei, block uint64) {
	b := ab.get(to)
	sum, err := b.Amount.Add(amount)
	if err != nil {
		panic(fmt.Sprintf("BALANCE_OVERFLOW: %s %s %v", ab.symbol, to.Hex(), err))
	}
	b.Amount = sum
	b.LastBlock = block
}

func (ab *assetBook) debit(from common.Address, amount quant.Wei, block uint64) {
	b := ab.get(from)
	rest, err := b.Amount.Sub(amount)
	if err != nil {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT: %s %s need %s, available %s", ab.symbol, from.Hex(), amount, b.Amount))
	}
	b.Amount = rest
	b.LastBlock = block
}

func (ab *assetBook) move(from, to common.Address, amount quant.Wei, block uint64) {
	ab.debit(from, amount, block)
	ab.credit(to, amount, block)
}

// spend moves amount out of owner on spender's allowance.
func (ab *assetBook) spend(owner, spender, to common.Address, amount quant.Wei, block uint64) {
	rest, err := ab.allowance(owner, spender).Sub(amount)
	if err != nil {
		panic(fmt.Sprintf("ALLOWANCE_INSUFFICIENT: %s %s->%s need %s", ab.symbol, owner.Hex(), spender.Hex(), amount))
	}
	ab.approve(owner, spender, rest)
	ab.move(owner, to, amount, block)
}

func (ab *assetBook) approve(owner, spender common.Address, amount quant.Wei) {
	m, ok := ab.allowances[owner]
	if !ok {
		m = make(map[common.Address]quant.Wei)
		ab.allowances[owner] = m
	}
	m[spender] = amount
}

// verifyInvariant checks that balances sum to the supply.
func (ab *assetBook) verifyInvariant() {
	var sum quant.Wei
	for addr, b := range ab.balances {
		var err error
		if sum, err = sum.Add(b.Amount); err != nil {
			panic(fmt.Sprintf("BALANCE_INVARIANT_OVERFLOW: %s at %s", ab.symbol, addr.Hex()))
		}
	}
	if !sum.Eq(ab.supply) {
		panic(fmt.Sprintf("BALANCE_INVARIANT_SUPPLY_MISMATCH: %s balances=%s supply=%s", ab.symbol, sum, ab.supply))
	}
}

// snapshot returns a copy of all balances (for state dump).
func (ab *assetBook) snapshot() map[string]assetBalance {
	out := make(map[string]assetBalance, len(ab.balances))
	for k, v := range ab.balances {
		out[k.Hex()] = *v
	}
	return out
}

// settlementBalance is one holder's position in a 6-decimal ledger.
type settlementBalance struct {
	Amount    quant.Micros `json:"amount"`
	LastBlock uint64       `json:"last_block"`
}

// settlementBook manages 6-decimal balances and allowances. Arithmetic panics on overflow.
type settlementBook struct {
	symbol     string
	supply     quant.Micros
	balances   map[common.Address]*settlementBalance
	allowances map[common.Address]map[common.Address]quant.Micros
}

func newSettlementBook(symbol string) *settlementBook {
	return &settlementBook{
		symbol:     symbol,
		balances:   make(map[common.Address]*settlementBalance),
		allowances: make(map[common.Address]map[common.Address]quant.Micros),
	}
}

func (sb *settlementBook) balanceOf(owner common.Address) quant.Micros {
	if b, ok := sb.balances[owner]; ok {
		return b.Amount
	}
	return 0
}

func (sb *settlementBook) allowance(owner, spender common.Address) quant.Micros {
	return sb.allowances[owner][spender]
}

func (sb *settlementBook) get(owner common.Address) *settlementBalance {
	b, ok := sb.balances[owner]
	if !ok {
		b = &settlementBalance{}
		sb.balances[owner] = b
	}
	return b
}

func (sb *settlementBook) checkMove(from common.Address, amount quant.Micros) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", quant.ErrNegativeAmount, amount)
	}
	if have := sb.balanceOf(from); have < amount {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(), have.Decimal(), sb.symbol, amount.Decimal())
	}
	return nil
}

func (sb *settlementBook) checkSpend(owner, spender common.Address, amount quant.Micros) error {
	if have := sb.allowance(owner, spender); have < amount {
		return fmt.Errorf("%w: %s allows %s %s to %s, needs %s", ErrInsufficientAllowance, owner.Hex(), have.Decimal(), sb.symbol, spender.Hex(), amount.Decimal())
	}
	return sb.checkMove(owner, amount)
}

func (sb *settlementBook) mint(to common.Address, amount quant.Micros, block uint64) {
	sb.supply = quant.Micros(safe.SafeAdd(int64(sb.supply), int64(amount)))
	sb.credit(to, amount, block)
}

func (sb *settlementBook) credit(to common.Address, amount quant.Micros, block uint64) {
	b := sb.get(to)
	b.Amount = quant.Micros(safe.SafeAdd(int64(b.Amount), int64(amount)))
	b.LastBlock = block
}

func (sb *settlementBook) debit(from common.Address, amount quant.Micros, block uint64) {
	b := sb.get(from)
	if amount > b.Amount {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT: %s %s need %d, available %d", sb.symbol, from.Hex(), amount, b.Amount))
	}
	b.Amount = quant.Micros(safe.SafeSub(int64(b.Amount), int64(amount)))
	b.LastBlock = block
}

func (sb *settlementBook) move(from, to common.Address, amount quant.Micros, block uint64) {
	sb.debit(from, amount, block)
	sb.credit(to, amount, block)
}

func (sb *settlementBook) spend(owner, spender, to common.Address, amount quant.Micros, block uint64) {
	have := sb.allowance(owner, spender)
	if amount > have {
		panic(fmt.Sprintf("ALLOWANCE_INSUFFICIENT: %s %s->%s need %d, allowed %d", sb.symbol, owner.Hex(), spender.Hex(), amount, have))
	}
	sb.approve(owner, spender, quant.Micros(safe.SafeSub(int64(have), int64(amount))))
	sb.move(owner, to, amount, block)
}

func (sb *settlementBook) approve(owner, spender common.Address, amount quant.Micros) {
	m, ok := sb.allowances[owner]
	if !ok {
		m = make(map[common.Address]quant.Micros)
		sb.allowances[owner] = m
	}
	m[spender] = amount
}

func (sb *settlementBook) verifyInvariant() {
	var sum int64
	for addr, b := range sb.balances {
		if b.Amount < 0 {
			panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_AMOUNT: %s %s = %d", sb.symbol, addr.Hex(), b.Amount))
		}
		sum = safe.SafeAdd(sum, int64(b.Amount))
	}
	if quant.Micros(sum) != sb.supply {
		panic(fmt.Sprintf("BALANCE_INVARIANT_SUPPLY_MISMATCH: %s balances=%d supply=%d", sb.symbol, sum, sb.supply))
	}
}

func (sb *settlementBook) snapshot() map[string]settlementBalance {
	out := make(map[string]settlementBalance, len(sb.balances))
	for k, v := range sb.balances {
		out[k.Hex()] = *v
	}
	return out
}
