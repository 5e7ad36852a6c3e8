package service

import (
	"context"
	"errors"
	"testing"

	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ammAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	buyer     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func purchase(block uint64, tokens uint64, cost quant.Micros) engine.Receipt {
	return engine.Receipt{Block: block, Status: true, Logs: []event.Event{
		&event.PurchaseEvent{BaseEvent: event.BaseEvent{Contract: vaultAddr}, Buyer: buyer, Amount: quant.Tokens(tokens), Cost: cost},
	}}
}

func swap(block uint64, buy bool, tokens uint64, settlement quant.Micros) engine.Receipt {
	return engine.Receipt{Block: block, Status: true, Logs: []event.Event{
		&event.SwapEvent{BaseEvent: event.BaseEvent{Contract: ammAddr}, Trader: buyer, Buy: buy, AssetAmount: quant.Tokens(tokens), SettlementAmt: settlement},
	}}
}

func TestTradeService_Purchases(t *testing.T) {
	svc := NewTradeService()

	svc.ProcessReceipt(purchase(1, 50_000, quant.USD(7_500)))
	svc.ProcessReceipt(purchase(2, 50_000, quant.USD(7_500)))

	vault := svc.GetData(vaultAddr)
	if vault == nil {
		t.Fatal("vault activity should exist")
	}
	if vault.Buys != 2 || vault.Sells != 0 {
		t.Errorf("Expected 2 buys, got %d buys %d sells", vault.Buys, vault.Sells)
	}
	if !vault.VolumeAsset.Eq(quant.Tokens(100_000)) {
		t.Errorf("Expected 100,000 tokens, got %s", vault.VolumeAsset.Format())
	}
	if vault.VolumeSettlement != quant.USD(15_000) {
		t.Errorf("Expected $15,000, got %s", vault.VolumeSettlement.USDString())
	}
	if vault.LastPrice != 150_000 || vault.LastBlock != 2 {
		t.Errorf("Expected last price 0.15 at block 2, got %s at %d", vault.LastPrice.PriceString(), vault.LastBlock)
	}
	if vault.Premium != nil {
		t.Error("Premium needs a reference price")
	}
}

func TestTradeService_CalculatePremium(t *testing.T) {
	svc := NewTradeService()
	svc.UpdateReferencePrice(150_000)

	// 1,000 tokens for $180: 0.18 per token
	svc.ProcessReceipt(swap(5, true, 1_000, quant.USD(180)))

	amm := svc.GetData(ammAddr)
	if amm.Premium == nil {
		t.Fatal("Premium should be calculated")
	}
	// (0.18 - 0.15) / 0.15 * 100 = 20%
	if !amm.Premium.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected premium 20%%, got %v", amm.Premium)
	}

	// A sell below the reference turns the premium negative
	svc.ProcessReceipt(swap(6, false, 1_000, quant.USD(120)))
	amm = svc.GetData(ammAddr)
	if amm.Sells != 1 || amm.Trades() != 2 {
		t.Errorf("Expected 1 sell of 2 trades, got %d of %d", amm.Sells, amm.Trades())
	}
	if !amm.Premium.Equal(decimal.NewFromInt(-20)) {
		t.Errorf("Expected premium -20%%, got %v", amm.Premium)
	}

	svc.UpdateReferencePrice(0)
	if svc.GetData(ammAddr).Premium != nil {
		t.Error("Premium should be cleared without a reference")
	}
}

func TestTradeService_RevertsAndOtherLogs(t *testing.T) {
	svc := NewTradeService()

	svc.ProcessReceipt(engine.Receipt{Block: 1, Status: false, Err: errors.New("wallet cap exceeded")})
	svc.ProcessReceipt(engine.Receipt{Block: 2, Status: true, Logs: []event.Event{
		&event.ReleaseEvent{BaseEvent: event.BaseEvent{Contract: vaultAddr}, Amount: quant.Tokens(1)},
	}})

	if svc.Reverts() != 1 {
		t.Errorf("Expected 1 revert, got %d", svc.Reverts())
	}
	if len(svc.GetAllData()) != 0 {
		t.Error("Non-trade logs should not create market activity")
	}
}

func TestTradeService_GetAllData_Sorted(t *testing.T) {
	svc := NewTradeService()

	svc.ProcessReceipt(swap(1, true, 10, quant.USD(2)))
	svc.ProcessReceipt(purchase(2, 10, quant.USD(1)))

	all := svc.GetAllData()
	if len(all) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(all))
	}
	if all[0].Contract != vaultAddr || all[1].Contract != ammAddr {
		t.Errorf("Not sorted: %s, %s", all[0].Contract.Hex(), all[1].Contract.Hex())
	}
}

func TestTradeService_AsyncHook(t *testing.T) {
	svc := NewTradeService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartReceiptProcessor(ctx)
	hook := svc.Hook()

	for i := uint64(1); i <= 20; i++ {
		hook(purchase(i, 1_000, quant.USD(150)))
	}
	svc.Wait()

	vault := svc.GetData(vaultAddr)
	if vault == nil || vault.Buys != 20 {
		t.Fatalf("Expected 20 buys after Wait, got %+v", vault)
	}

	cancel()
	<-svc.stopped
	// Receipts after the processor stopped are dropped without blocking.
	for i := 0; i < 2000; i++ {
		hook(purchase(100, 1, 1))
	}
}
