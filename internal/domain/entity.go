package domain

import (
	"time"
)

// AddressEntry is one persisted row of the address book (Key-Value)
type AddressEntry struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRecord is one simulation run
type RunRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Scenario   string    `json:"scenario" gorm:"index"`
	Network    string    `json:"network"`
	Status     string    `json:"status"` // "ok", "failed"
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PurchaseRow is a persisted PurchaseRecord. Amounts are stored as base-unit strings.
type PurchaseRow struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index"`
	Seq         int
	Buyer       string
	AmountAsset string
	CostMicros  int64
}

// PriceSampleRow is a persisted PriceSample.
type PriceSampleRow struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             string `gorm:"index"`
	Step              int
	NotionalMicros    int64
	CumulativeMicros  int64
	Received          string
	SpotMicros        int64
	ReserveAsset      string
	ReserveSettlement int64
}

// ReceiptRow is one journaled chain transaction.
type ReceiptRow struct {
	ID        uint   `gorm:"primaryKey"`
	Block     uint64 `gorm:"index"`
	Timestamp time.Time
	From      string
	Method    string `gorm:"index"`
	Status    bool
	Error     string
	Logs      string // JSON array of typed events
}
