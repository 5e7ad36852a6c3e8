package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"artist_ipo/internal/event"
	"artist_ipo/internal/infra"

	"github.com/ethereum/go-ethereum/common"
)

// ErrStopped is returned for requests sent after the sequencer loop exited.
var ErrStopped = errors.New("sequencer stopped")

// Block is the execution context handed to a request.
type Block struct {
	Number uint64
	Time   time.Time
	logs   []event.Event
}

// Emit stamps ev with the block and appends it to the receipt logs.
func (b *Block) Emit(ev event.Event) {
	event.Stamp(ev, b.Number, b.Time.Unix())
	b.logs = append(b.logs, ev)
}

// Receipt is the outcome of one mined transaction.
type Receipt struct {
	Block  uint64
	Time   time.Time
	From   common.Address
	Method string
	Status bool
	Err    error
	Logs   []event.Event
}

// RevertError is returned when a transaction's execution refused to apply.
// A reverted transaction is still mined; it changes no state.
type RevertError struct {
	Method string
	Reason error
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Method + ": " + e.Reason.Error()
}

func (e *RevertError) Unwrap() error {
	return e.Reason
}

// Journal persists receipts in mining order.
type Journal interface {
	SaveReceipt(ctx context.Context, r Receipt) error
}

type requestKind int

const (
	kindTx requestKind = iota
	kindCall
	kindIncreaseTime
	kindMine
)

type request struct {
	kind   requestKind
	from   common.Address
	method string
	exec   func(*Block) error
	delta  time.Duration
	done   chan Receipt
}

// Sequencer is the chain's single-threaded executor. Every transaction and every view runs on
// the Run goroutine, one at a time, in arrival order, so each request observes the effects of
// all requests before it.
type Sequencer struct {
	inbox     chan *request
	head      uint64
	headTime  time.Time
	pending   time.Duration
	blockTime time.Duration
	journal   Journal
	metrics   *infra.Metrics

	// Boundary: notified after every mined transaction
	onReceipt func(Receipt)
	// dump contributes chain state to post-mortem dumps
	dump     func() any
	dumpPath string

	stopped  chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex // Used only for external reads of the head
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithJournal persists every receipt before the submitter is released.
func WithJournal(j Journal) Option { return func(s *Sequencer) { s.journal = j } }

// WithReceiptHook registers a callback invoked on the Run goroutine for every receipt.
func WithReceiptHook(fn func(Receipt)) Option { return func(s *Sequencer) { s.onReceipt = fn } }

// WithStateDump sets the state included in panic dumps and the dump file path.
func WithStateDump(path string, fn func() any) Option {
	return func(s *Sequencer) {
		s.dumpPath = path
		s.dump = fn
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *infra.Metrics) Option { return func(s *Sequencer) { s.metrics = m } }

// WithBlockTime sets the timestamp increment between consecutive blocks.
func WithBlockTime(d time.Duration) Option { return func(s *Sequencer) { s.blockTime = d } }

// NewSequencer creates a sequencer whose genesis block has the given timestamp.
func NewSequencer(inboxSize int, genesis time.Time, opts ...Option) *Sequencer {
	s := &Sequencer{
		inbox:     make(chan *request, inboxSize),
		headTime:  genesis.UTC(),
		blockTime: time.Second,
		metrics:   infra.GlobalMetrics,
		dumpPath:  "panic_dump.json",
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("head", s.head), slog.Time("time", s.headTime))
	defer s.stopOnce.Do(func() { close(s.stopped) })

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Uint64("head", s.head))
			return
		case req := <-s.inbox:
			req.done <- s.process(ctx, req)
		}
	}
}

func (s *Sequencer) process(ctx context.Context, req *request) Receipt {
	switch req.kind {
	case kindCall:
		b := &Block{Number: s.head, Time: s.headTime}
		return Receipt{Block: b.Number, Time: b.Time, Method: req.method, Status: true, Err: req.exec(b)}
	case kindIncreaseTime:
		if req.delta < 0 {
			return Receipt{Method: req.method, Err: fmt.Errorf("cannot decrease time by %s", req.delta)}
		}
		s.pending += req.delta
		return Receipt{Block: s.head, Time: s.headTime, Method: req.method, Status: true}
	}

	start := time.Now()
	b := s.nextBlock()
	r := Receipt{Block: b.Number, Time: b.Time, From: req.from, Method: req.method, Status: true}
	if req.exec != nil {
		if err := req.exec(b); err != nil {
			r.Status = false
			r.Err = &RevertError{Method: req.method, Reason: err}
			s.metrics.RecordRevert()
		} else {
			r.Logs = b.logs
		}
	}
	s.commit(b)

	// Journal before releasing the submitter: a receipt the caller saw is always on disk.
	if s.journal != nil {
		if err := s.journal.SaveReceipt(ctx, r); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}
	if s.onReceipt != nil {
		s.onReceipt(r)
	}
	s.metrics.RecordTx(time.Since(start).Nanoseconds())
	return r
}

func (s *Sequencer) nextBlock() *Block {
	t := s.headTime.Add(s.blockTime + s.pending)
	return &Block{Number: s.head + 1, Time: t}
}

func (s *Sequencer) commit(b *Block) {
	s.mu.Lock()
	s.head = b.Number
	s.headTime = b.Time
	s.pending = 0
	s.mu.Unlock()
}

func (s *Sequencer) send(ctx context.Context, req *request) (Receipt, error) {
	req.done = make(chan Receipt, 1)
	select {
	case s.inbox <- req:
	case <-s.stopped:
		return Receipt{}, ErrStopped
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
	select {
	case r := <-req.done:
		return r, r.Err
	case <-s.stopped:
		return Receipt{}, ErrStopped
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// Submit mines a transaction from the given account and blocks until its receipt is available.
// A reverted transaction returns its receipt together with a *RevertError.
func (s *Sequencer) Submit(ctx context.Context, from common.Address, method string, exec func(*Block) error) (Receipt, error) {
	return s.send(ctx, &request{kind: kindTx, from: from, method: method, exec: exec})
}

// Call runs a read-only function against the current head without mining a block.
func (s *Sequencer) Call(ctx context.Context, method string, exec func(*Block) error) error {
	_, err := s.send(ctx, &request{kind: kindCall, method: method, exec: exec})
	return err
}

// IncreaseTime shifts the timestamp of the next mined block forward by d.
func (s *Sequencer) IncreaseTime(ctx context.Context, d time.Duration) error {
	_, err := s.send(ctx, &request{kind: kindIncreaseTime, method: "evm_increaseTime", delta: d})
	return err
}

// Mine mines an empty block, committing any pending time increase.
func (s *Sequencer) Mine(ctx context.Context) (Receipt, error) {
	return s.send(ctx, &request{kind: kindMine, method: "evm_mine"})
}

// Head returns the latest block number and timestamp (external read).
func (s *Sequencer) Head() (uint64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, s.headTime
}

// DumpState writes the sequencer and chain state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Head     uint64    `json:"head"`
		HeadTime time.Time `json:"head_time"`
		Pending  string    `json:"pending_time_increase"`
		State    any       `json:"state,omitempty"`
	}{
		Head:     s.head,
		HeadTime: s.headTime,
		Pending:  s.pending.String(),
	}
	if s.dump != nil {
		data.State = s.dump()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
