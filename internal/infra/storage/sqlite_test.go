package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"
	"artist_ipo/internal/event"
	"artist_ipo/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestAddressBookRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	book := domain.NewAddressBook(map[string]common.Address{
		domain.ContractToken: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		domain.ContractIPO:   common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
	})

	// 1. Save
	if err := s.SaveAddressBook(ctx, book); err != nil {
		t.Fatalf("SaveAddressBook failed: %v", err)
	}

	// 2. Load
	loaded, err := s.LoadAddressBook(ctx)
	require.NoError(t, err)
	assert.Equal(t, book.Entries(), loaded.Entries())

	// 3. Replace drops stale names
	smaller := domain.NewAddressBook(map[string]common.Address{
		domain.ContractToken: common.HexToAddress("0x0000000000000000000000000000000000000001"),
	})
	require.NoError(t, s.SaveAddressBook(ctx, smaller))
	loaded, err = s.LoadAddressBook(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	_, err = loaded.Get(domain.ContractIPO)
	assert.True(t, errors.Is(err, domain.ErrUnknownContract))
}

func TestRunWithPurchasesAndSamples(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	run := &domain.RunRecord{ID: "run-1", Scenario: "lifecycle", Network: "devnet", Status: "running", StartedAt: time.Now()}
	require.NoError(t, s.SaveRun(ctx, run))

	buyer := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	records := []domain.PurchaseRecord{
		{Seq: 1, Buyer: buyer, AmountAsset: quant.Tokens(50_000), CostSettlement: quant.USD(7_500)},
		{Seq: 2, Buyer: buyer, AmountAsset: quant.Tokens(20_000), CostSettlement: quant.USD(3_000)},
	}
	require.NoError(t, s.SavePurchases(ctx, run.ID, records))

	samples := []domain.PriceSample{
		{Step: 1, Notional: quant.USD(5_000), Cumulative: quant.USD(5_000), Received: quant.Tokens(1), Spot: 160_000,
			Market: domain.MarketState{ReserveAsset: quant.Tokens(45_000), ReserveSettlement: quant.USD(12_500)}},
	}
	require.NoError(t, s.SavePriceSamples(ctx, run.ID, samples))

	run.Status = "ok"
	run.FinishedAt = time.Now()
	require.NoError(t, s.SaveRun(ctx, run))

	fetched, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "ok", fetched.Status)

	rows, err := s.ListPurchases(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, quant.Tokens(50_000).String(), rows[0].AmountAsset)
	assert.Equal(t, int64(7_500_000_000), rows[0].CostMicros)
	assert.Equal(t, buyer.Hex(), rows[1].Buyer)

	sampleRows, err := s.ListPriceSamples(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, sampleRows, 1)
	assert.Equal(t, int64(160_000), sampleRows[0].SpotMicros)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveReceipt(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	amt := quant.Tokens(10)
	ok := engine.Receipt{
		Block:  1,
		Time:   time.Unix(1_735_689_601, 0).UTC(),
		From:   from,
		Method: "token.transfer",
		Status: true,
		Logs:   []event.Event{&event.TransferEvent{From: from, To: from, Asset: &amt}},
	}
	reverted := engine.Receipt{
		Block:  2,
		Time:   time.Unix(1_735_689_602, 0).UTC(),
		From:   from,
		Method: "vesting.release",
		Err:    &engine.RevertError{Method: "vesting.release", Reason: errors.New("nothing to release")},
	}

	require.NoError(t, s.SaveReceipt(ctx, ok))
	require.NoError(t, s.SaveReceipt(ctx, reverted))

	rows, err := s.ListReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Status)
	assert.Contains(t, rows[0].Logs, `"type":"Transfer"`)
	assert.False(t, rows[1].Status)
	assert.Contains(t, rows[1].Error, "nothing to release")
}
