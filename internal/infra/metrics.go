package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	txMined       atomic.Uint64
	txReverted    atomic.Uint64
	purchases     atomic.Uint64
	impactSteps   atomic.Uint64
	releases      atomic.Uint64
	fundingTopUps atomic.Uint64
	errorsTotal   atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTx records a mined transaction with its execution latency.
func (m *Metrics) RecordTx(latencyNs int64) {
	m.txMined.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRevert records a reverted transaction.
func (m *Metrics) RecordRevert() {
	m.txReverted.Add(1)
}

// RecordPurchase records a primary-sale purchase.
func (m *Metrics) RecordPurchase() {
	m.purchases.Add(1)
}

// RecordImpactStep records one secondary-market demand step.
func (m *Metrics) RecordImpactStep() {
	m.impactSteps.Add(1)
}

// RecordRelease records a vesting release.
func (m *Metrics) RecordRelease() {
	m.releases.Add(1)
}

// RecordTopUp records a funding top-up of a buyer.
func (m *Metrics) RecordTopUp() {
	m.fundingTopUps.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TxMined       uint64    `json:"tx_mined"`
	TxReverted    uint64    `json:"tx_reverted"`
	Purchases     uint64    `json:"purchases"`
	ImpactSteps   uint64    `json:"impact_steps"`
	Releases      uint64    `json:"releases"`
	FundingTopUps uint64    `json:"funding_top_ups"`
	ErrorsTotal   uint64    `json:"errors_total"`
	AvgLatencyNs  int64     `json:"avg_latency_ns"`
	Timestamp     time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TxMined:       m.txMined.Load(),
		TxReverted:    m.txReverted.Load(),
		Purchases:     m.purchases.Load(),
		ImpactSteps:   m.impactSteps.Load(),
		Releases:      m.releases.Load(),
		FundingTopUps: m.fundingTopUps.Load(),
		ErrorsTotal:   m.errorsTotal.Load(),
		AvgLatencyNs:  avgLatency,
		Timestamp:     time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.txMined.Store(0)
	m.txReverted.Store(0)
	m.purchases.Store(0)
	m.impactSteps.Store(0)
	m.releases.Store(0)
	m.fundingTopUps.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
}
