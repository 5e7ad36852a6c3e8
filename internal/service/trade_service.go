package service

import (
	"context"
	"sort"
	"sync"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TradeService aggregates the trades found in mined receipts, per contract.
type TradeService struct {
	mu          sync.RWMutex
	markets     map[common.Address]*domain.MarketActivity
	reference   quant.Micros
	reverts     int
	receiptChan chan engine.Receipt

	pending sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// NewTradeService creates a new TradeService instance
func NewTradeService() *TradeService {
	return &TradeService{
		markets:     make(map[common.Address]*domain.MarketActivity),
		receiptChan: make(chan engine.Receipt, 1000), // 버스트 대응을 위한 충분한 버퍼
		stopped:     make(chan struct{}),
	}
}

// GetAllData returns a copy of every market's activity sorted by contract address
func (s *TradeService) GetAllData() []domain.MarketActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MarketActivity, 0, len(s.markets))
	for _, data := range s.markets {
		result = append(result, *data)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Contract.Cmp(result[j].Contract) < 0
	})

	return result
}

// GetData returns a copy of one contract's activity, or nil if it never traded.
func (s *TradeService) GetData(contract common.Address) *domain.MarketActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.markets[contract]
	if !ok {
		return nil
	}
	out := *data
	return &out
}

// UpdateReferencePrice sets the price premiums are measured against and recomputes them.
func (s *TradeService) UpdateReferencePrice(price quant.Micros) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reference = price
	for _, data := range s.markets {
		s.calculatePremium(data)
	}
}

// GetReferencePrice returns the current reference price
func (s *TradeService) GetReferencePrice() quant.Micros {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reference
}

// Reverts returns how many reverted transactions were seen.
func (s *TradeService) Reverts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reverts
}

// Hook returns a receipt callback for engine.WithReceiptHook. It queues the receipt for
// the processor and never blocks once the processor has stopped.
func (s *TradeService) Hook() func(engine.Receipt) {
	return func(r engine.Receipt) {
		select {
		case <-s.stopped:
			return
		default:
		}
		s.pending.Add(1)
		select {
		case s.receiptChan <- r:
		case <-s.stopped:
			s.pending.Done()
		}
	}
}

// StartReceiptProcessor starts a background goroutine to process receipts from the channel
func (s *TradeService) StartReceiptProcessor(ctx context.Context) {
	go func() {
		defer s.once.Do(func() { close(s.stopped) })
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-s.receiptChan:
				s.ProcessReceipt(r)
				s.pending.Done()
			}
		}
	}()
}

// Wait blocks until every queued receipt has been processed. Call it once no transaction
// is in flight.
func (s *TradeService) Wait() {
	s.pending.Wait()
}

// ProcessReceipt records the purchases and swaps of one receipt.
func (s *TradeService) ProcessReceipt(r engine.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.Status {
		s.reverts++
		return
	}
	for _, ev := range r.Logs {
		switch e := ev.(type) {
		case *event.PurchaseEvent:
			s.record(e.Contract, r.Block, true, e.Amount, e.Cost)
		case *event.SwapEvent:
			s.record(e.Contract, r.Block, e.Buy, e.AssetAmount, e.SettlementAmt)
		}
	}
}

// record applies one trade. Must be called with lock held
func (s *TradeService) record(contract common.Address, block uint64, buy bool, asset quant.Wei, settlement quant.Micros) {
	data, exists := s.markets[contract]
	if !exists {
		data = &domain.MarketActivity{Contract: contract}
		s.markets[contract] = data
	}

	if buy {
		data.Buys++
	} else {
		data.Sells++
	}
	if v, err := data.VolumeAsset.Add(asset); err == nil {
		data.VolumeAsset = v
	}
	data.VolumeSettlement += settlement
	data.LastBlock = block
	if price, err := quant.SpotPrice(asset, settlement); err == nil {
		data.LastPrice = price
	}
	s.calculatePremium(data)
}

// calculatePremium calculates premium: 100 * (LastPrice - Reference) / Reference
// Must be called with lock held
func (s *TradeService) calculatePremium(data *domain.MarketActivity) {
	if s.reference <= 0 || data.LastPrice <= 0 {
		data.Premium = nil
		return
	}

	ref := s.reference.Decimal()
	premium := data.LastPrice.Decimal().Sub(ref).Div(ref).Mul(decimal.NewFromInt(100))
	data.Premium = &premium
}
