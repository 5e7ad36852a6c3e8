package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"artist_ipo/internal/domain"
	"artist_ipo/internal/engine"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage persists address books, runs and the chain journal.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the SQLite database at path, or at the per-user default location when
// path is empty.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		dbPath, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.AddressEntry{},
		&domain.RunRecord{},
		&domain.PurchaseRow{},
		&domain.PriceSampleRow{},
		&domain.ReceiptRow{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "ArtistIPO", "data", "artist_ipo.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Address Book
// ======================================================================================

// SaveAddressBook replaces the persisted address book with book.
func (s *Storage) SaveAddressBook(ctx context.Context, book domain.AddressBook) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.AddressEntry{}).Error; err != nil {
			return err
		}
		for _, name := range book.Names() {
			addr, _ := book.Get(name)
			entry := domain.AddressEntry{Name: name, Address: addr.Hex(), UpdatedAt: now}
			if err := tx.Save(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAddressBook reads the persisted address book. An empty table yields an empty book.
func (s *Storage) LoadAddressBook(ctx context.Context) (domain.AddressBook, error) {
	var entries []domain.AddressEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return domain.AddressBook{}, err
	}

	m := make(map[string]common.Address, len(entries))
	for _, e := range entries {
		if !common.IsHexAddress(e.Address) {
			return domain.AddressBook{}, fmt.Errorf("address book entry %q: invalid address %q", e.Name, e.Address)
		}
		m[e.Name] = common.HexToAddress(e.Address)
	}
	return domain.NewAddressBook(m), nil
}

// ======================================================================================
// Runs
// ======================================================================================

// SaveRun creates or updates a run record.
func (s *Storage) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	return s.db.WithContext(ctx).Save(run).Error
}

// GetRun retrieves a run by id
func (s *Storage) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	var run domain.RunRecord
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &run, err
}

// SavePurchases appends the purchase records of a run.
func (s *Storage) SavePurchases(ctx context.Context, runID string, records []domain.PurchaseRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]domain.PurchaseRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, domain.PurchaseRow{
			RunID:       runID,
			Seq:         r.Seq,
			Buyer:       r.Buyer.Hex(),
			AmountAsset: r.AmountAsset.String(),
			CostMicros:  int64(r.CostSettlement),
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// ListPurchases returns the purchases of a run in sale order.
func (s *Storage) ListPurchases(ctx context.Context, runID string) ([]domain.PurchaseRow, error) {
	var rows []domain.PurchaseRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Find(&rows).Error
	return rows, err
}

// SavePriceSamples appends the price series of a run.
func (s *Storage) SavePriceSamples(ctx context.Context, runID string, samples []domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]domain.PriceSampleRow, 0, len(samples))
	for _, p := range samples {
		rows = append(rows, domain.PriceSampleRow{
			RunID:             runID,
			Step:              p.Step,
			NotionalMicros:    int64(p.Notional),
			CumulativeMicros:  int64(p.Cumulative),
			Received:          p.Received.String(),
			SpotMicros:        int64(p.Spot),
			ReserveAsset:      p.Market.ReserveAsset.String(),
			ReserveSettlement: int64(p.Market.ReserveSettlement),
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// ListPriceSamples returns the price series of a run in step order.
func (s *Storage) ListPriceSamples(ctx context.Context, runID string) ([]domain.PriceSampleRow, error) {
	var rows []domain.PriceSampleRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("step").Find(&rows).Error
	return rows, err
}

// ======================================================================================
// Journal
// ======================================================================================

type loggedEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SaveReceipt journals one mined transaction. Implements engine.Journal.
func (s *Storage) SaveReceipt(ctx context.Context, r engine.Receipt) error {
	logs := make([]loggedEvent, 0, len(r.Logs))
	for _, ev := range r.Logs {
		logs = append(logs, loggedEvent{Type: string(ev.GetType()), Data: ev})
	}
	encoded, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("encode logs of block %d: %w", r.Block, err)
	}

	row := domain.ReceiptRow{
		Block:     r.Block,
		Timestamp: r.Time,
		From:      r.From.Hex(),
		Method:    r.Method,
		Status:    r.Status,
		Logs:      string(encoded),
	}
	if r.Err != nil {
		row.Error = r.Err.Error()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListReceipts returns journaled receipts in block order.
func (s *Storage) ListReceipts(ctx context.Context) ([]domain.ReceiptRow, error) {
	var rows []domain.ReceiptRow
	err := s.db.WithContext(ctx).Order("block").Find(&rows).Error
	return rows, err
}
