package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"artist_ipo/internal/event"
	"artist_ipo/internal/infra"

	"github.com/ethereum/go-ethereum/common"
)

var genesis = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type memJournal struct {
	mu       sync.Mutex
	receipts []Receipt
}

func (j *memJournal) SaveReceipt(_ context.Context, r Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.receipts = append(j.receipts, r)
	return nil
}

func startSequencer(t *testing.T, opts ...Option) *Sequencer {
	t.Helper()
	opts = append([]Option{WithMetrics(&infra.Metrics{})}, opts...)
	seq := NewSequencer(16, genesis, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)
	return seq
}

func TestSequencer_MinesOneBlockPerTransaction(t *testing.T) {
	j := &memJournal{}
	seq := startSequencer(t, WithJournal(j))
	ctx := context.Background()
	from := common.HexToAddress("0x01")

	counter := 0
	for i := 0; i < 3; i++ {
		r, err := seq.Submit(ctx, from, "inc", func(b *Block) error {
			counter++
			b.Emit(&event.PriceSetEvent{})
			return nil
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if r.Block != uint64(i+1) {
			t.Errorf("receipt block = %d, want %d", r.Block, i+1)
		}
		if len(r.Logs) != 1 || r.Logs[0].GetSeq() != r.Block {
			t.Errorf("logs not stamped with block: %+v", r.Logs)
		}
	}

	head, ts := seq.Head()
	if head != 3 {
		t.Errorf("head = %d, want 3", head)
	}
	if want := genesis.Add(3 * time.Second); !ts.Equal(want) {
		t.Errorf("head time = %s, want %s", ts, want)
	}
	if counter != 3 {
		t.Errorf("counter = %d, want 3", counter)
	}
	if len(j.receipts) != 3 {
		t.Errorf("journaled %d receipts, want 3", len(j.receipts))
	}
}

func TestSequencer_Revert(t *testing.T) {
	seq := startSequencer(t)
	reason := errors.New("insufficient allowance")

	r, err := seq.Submit(context.Background(), common.Address{}, "ipo.buy", func(*Block) error { return reason })
	var rev *RevertError
	if !errors.As(err, &rev) {
		t.Fatalf("expected RevertError, got %v", err)
	}
	if !errors.Is(err, reason) {
		t.Error("RevertError should unwrap to the reason")
	}
	if r.Status {
		t.Error("reverted receipt must have Status=false")
	}
	if r.Block != 1 {
		t.Errorf("reverted tx is still mined, block = %d", r.Block)
	}
	if err.Error() != "execution reverted: ipo.buy: insufficient allowance" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSequencer_CallDoesNotMine(t *testing.T) {
	seq := startSequencer(t)
	var seen uint64 = 99
	if err := seq.Call(context.Background(), "view", func(b *Block) error {
		seen = b.Number
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if seen != 0 {
		t.Errorf("view saw block %d, want 0", seen)
	}
	if head, _ := seq.Head(); head != 0 {
		t.Errorf("head = %d after view", head)
	}
}

func TestSequencer_IncreaseTimeAndMine(t *testing.T) {
	seq := startSequencer(t)
	ctx := context.Background()

	if err := seq.IncreaseTime(ctx, 40*24*time.Hour); err != nil {
		t.Fatal(err)
	}
	// time is pending until a block is mined
	if _, ts := seq.Head(); !ts.Equal(genesis) {
		t.Errorf("head time moved before mine: %s", ts)
	}
	r, err := seq.Mine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := genesis.Add(40*24*time.Hour + time.Second)
	if !r.Time.Equal(want) {
		t.Errorf("mined block time = %s, want %s", r.Time, want)
	}

	// the increase is consumed by the mined block
	r, _ = seq.Mine(ctx)
	if !r.Time.Equal(want.Add(time.Second)) {
		t.Errorf("next block time = %s", r.Time)
	}

	if err := seq.IncreaseTime(ctx, -time.Second); err == nil {
		t.Error("negative increase should fail")
	}
}

func TestSequencer_StoppedAndCancelled(t *testing.T) {
	seq := NewSequencer(1, genesis, WithMetrics(&infra.Metrics{}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		seq.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := seq.Submit(context.Background(), common.Address{}, "late", nil)
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestSequencer_DumpState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	seq := NewSequencer(1, genesis, WithStateDump(path, func() any {
		return map[string]int{"contracts": 6}
	}))
	seq.DumpState(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty dump")
	}
}
